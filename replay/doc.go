// Package replay stores DPoP proof identifiers for the dpop.ReplayChecker
// contract: a Redis-backed checker for multi-instance deployments and an
// in-memory one for single processes and tests.
package replay
