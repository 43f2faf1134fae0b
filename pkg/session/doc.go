// Package session implements the token-keyed session store backing the
// gatehouse authority.
//
// # Overview
//
// A session is created when the token authority accepts a credential check:
// an opaque bearer token is generated and an Identity record is written to
// Redis under session:<token> with the configured TTL. Redis is the sole
// authority on expiry. Nothing in this package (or anywhere else) reads or
// writes expiry timestamps by hand, and an expired record is reported
// exactly like one that never existed.
//
// # Components
//
//   - Token generation: NewToken (crypto/rand, base64url)
//   - RedisStore: Put/Get/CountActive over go-redis
//   - Monitor: background loop republishing the live session count
//
// # Related Packages
//
//   - pkg/api: the HTTP surface that issues and validates tokens
//   - pkg/authclient: the downstream-service view of validation
package session
