// Package auth issues and validates the bearer tokens that guard the
// Puck Central API.
//
// Tokens are HS256 JWTs signed with api.auth.jwt_secret. Each carries a
// scope:
//   - read: GET and HEAD only (dashboards, monitoring)
//   - control: everything, including pairing, rule changes and manual fires
//
// Validation is by signature and expiry only; there is no token store, so
// rotating the secret is how tokens are revoked.
package auth
