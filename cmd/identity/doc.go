// Package identity resolves principals for the session layer.
//
// A principal is an account that can log in: an opaque ULID, a normalized
// email used as the login identifier, an Argon2id password hash and an
// active flag. The session manager reads principals through Directory and
// checks passwords through Argon2idVerifier; it never writes them.
package identity
