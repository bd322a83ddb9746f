// Package password implements the slow password hash engine: Argon2id for new
// hashes, plus verification of legacy bcrypt and PBKDF2-SHA256 hashes.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.Check] returns [MatchNeedsRehash] when the stored hash was produced
// with weaker Argon2 parameters or by a legacy algorithm, so the caller can
// re-hash after a successful check.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Strength policy (minimum
// length, lockout) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goPasswordless package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
