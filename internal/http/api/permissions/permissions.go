package permissions

import (
	"net/http"
	"sort"
	"strings"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
)

// Modules group definitions for listing and role grants.
const (
	ModuleErrors       = "Errors"
	ModuleAlerts       = "Alerts"
	ModuleApplications = "Applications"
	ModuleUsers        = "Users"
	ModuleSettings     = "Settings"
	ModuleAudit        = "Audit"
)

// Definition describes a guarded API route.
type Definition struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

// Key builds a permission key from method and path.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Allowed reports whether role may call the route identified by key.
// Unknown roles and undefined keys are denied.
func Allowed(role security.Role, key string) bool {
	if key == "" {
		return false
	}
	granted, ok := roleCapabilities[role]
	if !ok {
		return false
	}
	_, ok = granted[key]
	return ok
}

// Capabilities returns the sorted permission keys granted to role.
func Capabilities(role security.Role) []string {
	granted := roleCapabilities[role]
	out := make([]string, 0, len(granted))
	for key := range granted {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Definitions returns a copy of all permission definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap returns a copy of the permission definition map.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitionMap))
	for key, value := range definitionMap {
		out[key] = value
	}
	return out
}

// newDefinition builds a Definition with a normalized key.
func newDefinition(method, path, label, module string) Definition {
	upperMethod := strings.ToUpper(method)
	return Definition{
		Key:    Key(upperMethod, path),
		Method: upperMethod,
		Path:   path,
		Label:  label,
		Module: module,
	}
}

// definitions is the ordered list of permission definitions.
var definitions = []Definition{
	newDefinition("GET", "/v0/errors", "List Errors", ModuleErrors),
	newDefinition("POST", "/v0/errors/:id/resolve", "Resolve Error", ModuleErrors),

	newDefinition("GET", "/v0/alerts", "List Alerts", ModuleAlerts),
	newDefinition("POST", "/v0/alerts", "Create Alert", ModuleAlerts),
	newDefinition("POST", "/v0/alerts/:id/resolve", "Resolve Alert", ModuleAlerts),

	newDefinition("GET", "/v0/applications", "List Applications", ModuleApplications),
	newDefinition("POST", "/v0/applications", "Create Application", ModuleApplications),
	newDefinition("POST", "/v0/applications/:id/pause", "Pause Application", ModuleApplications),
	newDefinition("POST", "/v0/applications/:id/resume", "Resume Application", ModuleApplications),

	newDefinition("POST", "/v0/admin/users", "Create User", ModuleUsers),
	newDefinition("GET", "/v0/admin/users", "List Users", ModuleUsers),
	newDefinition("POST", "/v0/admin/users/:id/disable", "Disable User", ModuleUsers),
	newDefinition("POST", "/v0/admin/users/:id/enable", "Enable User", ModuleUsers),
	newDefinition("PUT", "/v0/admin/users/:id/two-factor", "Set User Two-Factor", ModuleUsers),
	newDefinition("PUT", "/v0/admin/users/:id/role", "Set User Role", ModuleUsers),

	newDefinition("GET", "/v0/admin/settings", "List Settings", ModuleSettings),
	newDefinition("PUT", "/v0/admin/settings", "Upsert Setting", ModuleSettings),
	newDefinition("GET", "/v0/admin/settings/two-factor", "View Global Two-Factor", ModuleSettings),
	newDefinition("PUT", "/v0/admin/settings/two-factor", "Set Global Two-Factor", ModuleSettings),
	newDefinition("GET", "/v0/admin/permissions", "List Permissions", ModuleSettings),

	newDefinition("GET", "/v0/admin/audit", "List Audit Log", ModuleAudit),
}

var definitionMap = func() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}()

// operatorModules are the modules developers and viewers can reach.
var operatorModules = map[string]struct{}{
	ModuleErrors:       {},
	ModuleAlerts:       {},
	ModuleApplications: {},
}

// roleCapabilities maps each role to its granted permission keys.
var roleCapabilities = map[security.Role]map[string]struct{}{
	security.RoleAdmin: grant(func(Definition) bool { return true }),
	security.RoleDeveloper: grant(func(def Definition) bool {
		_, ok := operatorModules[def.Module]
		return ok
	}),
	security.RoleViewer: grant(func(def Definition) bool {
		_, ok := operatorModules[def.Module]
		return ok && def.Method == http.MethodGet
	}),
}

func grant(match func(Definition) bool) map[string]struct{} {
	out := make(map[string]struct{})
	for _, def := range definitions {
		if match(def) {
			out[def.Key] = struct{}{}
		}
	}
	return out
}
