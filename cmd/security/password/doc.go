// Package password hashes and verifies principal passwords with Argon2id.
//
// Hashes use the PHC string format
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
//
// so hashes written by other Argon2 implementations with the same format
// verify here. Stored hashes are treated as untrusted input: Verify refuses
// parameters far above the configured cost.
package password
