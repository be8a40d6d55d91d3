// Package password hashes account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
//
// Encoded hashes are treated as untrusted input: Verify refuses parameters far
// above the hasher's own, so a planted hash cannot pin the CPU.
package password
