package domain

// Permission scopes understood by the gateway. Routes declare the scopes
// they require; tokens carry the scopes they were granted.
const (
	ScopeGeneralAccess  = "General.Access"
	ScopeGeneralLogs    = "General.Logs"
	ScopeTokensGenerate = "Tokens.Generate"
	ScopeTokensList     = "Tokens.List"
)

// AdminScope is the elevated scope set granted to the bootstrap admin token.
func AdminScope() []string {
	return []string{
		ScopeGeneralAccess,
		ScopeGeneralLogs,
		ScopeTokensGenerate,
		ScopeTokensList,
	}
}

// AdminUserID is the reserved subject of the bootstrap token.
const AdminUserID = "admin"
