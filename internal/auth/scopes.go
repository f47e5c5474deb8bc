package auth

// Scopes checked by the read APIs.
const (
	ScopeHealthRead       = "health:read"
	ScopeConnectionsWrite = "connections:write"
)
