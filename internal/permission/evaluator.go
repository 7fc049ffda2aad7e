// Package permission implements scope-subset authorization checks.
package permission

// Check reports whether every required permission is present in the granted
// set. Authorization demands exact containment: a token granting a superset
// passes, any missing requirement denies.
func Check(required, granted []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		have[scope] = struct{}{}
	}
	for _, scope := range required {
		if _, ok := have[scope]; !ok {
			return false
		}
	}
	return true
}
