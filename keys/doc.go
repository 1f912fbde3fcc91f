// Package keys defines the key-material boundary every token service resolves
// signing and verification keys through, plus an in-memory reference
// implementation used by tests, examples and the CLI.
//
// Key ids carried in token headers are "<kid>.<version>"; see [FormatKid] and
// [ParseKid].
package keys
