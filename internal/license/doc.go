// Package license implements offline license keys for vidloader.
//
// # Components
//
//	- Key: parses and normalizes the user entered PRO-XXXX-XXXX-XXXX key
//	- Verifier: checks an Ed25519 signature over the canonical payload
//	- Store: persists the activated Record and re-verifies it on load
//	- Issuer: obtains the signature for an activation (GrantIssuer, KeyIssuer)
//	- AttemptGuard: limits repeated failed activations
//
// # Canonical Payload
//
// The signed bytes are a fixed sequence of newline terminated lines:
//
//	vidloader-license-v1
//	key=PRO-ABCD-EFGH-IJKL
//	email=user@example.com
//	machine=<fingerprint>
//	plan=pro
//	issued=2024-05-01T10:00:00Z
//
// An expires= line follows only when the grant carries an expiry. Field
// values may not contain CR, LF or NUL.
//
// # Offline Activation
//
// For machines without a vendor connection:
//
//	1. EncodeRequest turns the key, email and machine fingerprint into a code
//	2. The user sends the code to the vendor
//	3. The vendor signs it (cmd/licensegen) and returns a response blob
//	4. GrantIssuer applies the blob and the record is stored
//
// # Fail-Safe Loading
//
// Store.Load returns a typed error for a missing file, a parse failure, a
// bad signature, a machine mismatch or an expired grant. Callers treat every
// one of them as the free tier.
package license
