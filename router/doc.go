// Package router dispatches token operations across several services.
//
// Mint picks a backend from explicit routing headers, confirmation claims and
// the requested algorithm. Verify sniffs the token shape, tries the selected
// backend first and falls back to the others in registration order. JWKS
// merges every backend's published keys.
package router
