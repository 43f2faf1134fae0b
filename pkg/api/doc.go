// Package api implements the HTTP surface of the gatehouse token authority.
//
// # Routes
//
//	GET  /login         login form
//	POST /login         credential check -> token issuance -> cookie + redirect
//	GET  /register      registration form
//	POST /register      account creation
//	GET  /api/validate  token validation for downstream services
//	GET  /metrics       prometheus scrape
//	GET  /healthz       liveness
//	GET  /readyz        readiness (credential DB + Redis)
//
// # Failure contract
//
// A failed login never reveals whether the username exists. A validation
// miss never reveals whether the token expired or was never issued; only a
// session-store outage is distinguishable (503 vs 403) so downstream
// services can tell "not authenticated" from "cannot authenticate".
package api
