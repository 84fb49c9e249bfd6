// Package quota enforces the free tier's daily download cap through a
// tamper-evident counter file shared by every running process.
//
// The file holds {date, count, tag}. The tag is an HMAC-SHA256 over the date
// and count keyed by a value derived from the machine fingerprint with HKDF,
// so a hand-edited count is detected. A record that fails to parse or
// verify is replaced by a fresh record for today.
//
// Every read-verify-write cycle runs under a lock on a sidecar file
// (<quota file>.lock): exclusive for Increment, shared for Check. Lock
// acquisition is bounded; on timeout the download is denied.
//
// A record dated after today means the clock was moved backwards and the
// request is denied with ErrClockRollback instead of resetting the count.
package quota
