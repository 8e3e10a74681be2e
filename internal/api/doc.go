// Package api implements the HTTP REST API and WebSocket server for Curtain Lights.
//
// This package provides:
//   - REST endpoints to submit, cancel and inspect celebrations per tenant device
//   - Manual test commands, payment pushes and device listing
//   - WebSocket hub relaying celebration state changes to subscribed clients
//   - JWT bearer authentication with tenant scoping and role permissions
//   - Middleware stack (request ID, logging, Prometheus, recovery, CORS)
//
// # Security
//
// Every /api/v1 route except /health requires a bearer token carrying
// tenant_id and role claims. Tenant-scoped roles may only touch routes under
// their own /tenants/{tenantID}. WebSocket connections use single-use tickets
// to prevent token leakage in URLs, and only receive events for the tenant
// the ticket was issued to.
//
// # Graceful Degradation
//
// Device listing, payment intake and manual scheduler runs are optional
// dependencies; their routes answer 503 when the dependency is absent.
package api
