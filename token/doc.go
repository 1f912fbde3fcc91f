// Package token holds the data model every token service shares: the claim
// set, the capability descriptor, per-call mint and verify options, the
// request-scoped proof evidence, and the error taxonomy.
//
// # What this package must NOT do
//
//   - Perform cryptography or key lookups.
//   - Import any service package.
package token
