// Package sshcert issues and verifies OpenSSH certificates as tokens. The
// token is the authorized_keys line of the certificate; claims map onto the
// certificate fields.
package sshcert
