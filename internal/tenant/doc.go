// Package tenant holds the configured tenants, each bound to one light, and
// resolves tenant/device pairs for the celebration engine.
package tenant
