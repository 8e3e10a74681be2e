// Package auth verifies bearer tokens and maps roles to permissions.
//
// Tokens are HS256 JWTs issued by the external identity service. Each carries
// a role and, except for admins, the tenant it may act for:
//   - tenant: celebrate, cancel, inspect and test its own device
//   - service: push verified events for its tenant only
//   - admin: everything, for every tenant, plus operational endpoints
package auth
