// Package token is the credential codec for candidash.
//
// It signs and verifies the two bearer credential kinds (access and refresh)
// as HS256 JWTs. Each kind is signed with its own key, derived by HKDF-SHA256
// from the one configured signing secret, and carries an explicit "kind" claim.
// A well-signed credential of the wrong kind is rejected with ErrWrongKind.
//
// The package also owns the keyed digest used to persist refresh credentials:
// stores never see the plain token, only HashToken(token).
//
// Decoding is a pure function of the token bytes, the secret and the caller
// supplied time. No I/O happens here.
package token
