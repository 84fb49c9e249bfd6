// Package security derives the machine fingerprint that licenses are bound
// to.
//
// The fingerprint is a SHA-256 digest over a versioned domain string, the
// operating system's stable machine id (falling back to the hostname when
// none exists), GOOS and GOARCH. It identifies a machine for binding only
// and carries no personal data.
package security
