// Package auth - scopes.go defines permission scope constants and the
// HasScope/HasAnyScope helpers used by middleware for capability checks.
package auth

// Scope represents a permission/scope type.
type Scope string

const (
	// Tenant-level business scopes carried by ordinary principals.
	ScopeClientsRead    Scope = "clients:read"
	ScopeClientsWrite   Scope = "clients:write"
	ScopeInventoryRead  Scope = "inventory:read"
	ScopeInventoryWrite Scope = "inventory:write"
	ScopeSalesWrite     Scope = "sales:write"
	ScopeReportsRead    Scope = "reports:read"

	// ScopePlatformAdmin is the platform-operator capability. It is the only
	// scope that exempts a principal from the cross-tenant guard, and the
	// exemption is always an explicit check against this constant, never an
	// implicit fallthrough.
	ScopePlatformAdmin Scope = "platform:admin"
)

// HasScope checks if the given scope list contains the required scope.
// ScopePlatformAdmin implies every other scope.
func HasScope(scopes []string, required Scope) bool {
	for _, s := range scopes {
		if s == string(required) || s == string(ScopePlatformAdmin) {
			return true
		}
	}
	return false
}

// HasAnyScope checks if the scope list contains at least one required scope.
func HasAnyScope(scopes []string, required []Scope) bool {
	for _, r := range required {
		if HasScope(scopes, r) {
			return true
		}
	}
	return false
}

// IsPlatformAdmin reports whether the scope list carries the platform
// operator capability. Used by the cross-tenant guard; kept as a named helper
// so call sites read as a capability check rather than a string comparison.
func IsPlatformAdmin(scopes []string) bool {
	for _, s := range scopes {
		if s == string(ScopePlatformAdmin) {
			return true
		}
	}
	return false
}
