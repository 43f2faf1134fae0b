// Package creds implements the credential store consulted by the token
// authority.
//
// The contract is a read-only verify: Verify(username, password) either
// yields the stored identity or fails uniformly, so a caller can never learn
// whether the username exists or the password was wrong. Registration is
// the only write path.
//
// The store runs over database/sql so the backing driver is a deployment
// choice (sqlite3 for the single-node default, postgres for shared
// installs).
package creds
