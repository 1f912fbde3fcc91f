// Package paseto issues and verifies PASETO v4 tokens in both purposes:
// public (Ed25519 signatures) and local (authenticated encryption under a
// 32-byte key).
//
// Tokens carry a {"kid":"<id>.<version>"} footer. The footer is authenticated
// but is only used to order candidate keys; a token whose footer names the
// wrong key still verifies if any allowed key accepts it.
package paseto
