// Package password implements password hashing, verification and reuse-history
// checks for goIdentity.
//
// # Algorithms
//
// Argon2id is the default and is encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt, scrypt, sha (sha1/sha224/sha256/sha384/sha512) and md5 digests are
// accepted so that users imported from other systems can sign in. After a
// successful verification [NeedsUpgrade] tells the caller to rewrite the
// stored digest with the default algorithm.
//
// # Architecture boundaries
//
// This package owns hashing, verification and the history window only. Length
// and personal-data policy is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive digests.
//   - Import any other goIdentity package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
