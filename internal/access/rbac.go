package access

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

type Permission struct {
	Resource string   `yaml:"resource"`
	Actions  []string `yaml:"actions"`
}

type Role struct {
	Description string       `yaml:"description"`
	Permissions []Permission `yaml:"permissions"`
}

type Policy struct {
	Roles map[string]Role `yaml:"roles"`
}

// RBAC answers "may this role perform this action on this resource". Roles
// are fixed per principal (student or staff, from the stored profile), so
// unlike a full user-assignment model there is nothing mutable here after
// load.
type RBAC struct {
	policy *Policy
}

// Load reads an RBAC policy from a YAML file, or the embedded default when
// path is empty.
func Load(path string) (*RBAC, error) {
	data := defaultPolicy
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
		data = fileData
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if len(policy.Roles) == 0 {
		return nil, fmt.Errorf("policy defines no roles")
	}

	slog.Info("RBAC policy loaded", "roles", len(policy.Roles))
	return &RBAC{policy: &policy}, nil
}

// Can checks if a role can perform an action on a resource
func (r *RBAC) Can(role, resource, action string) bool {
	def, exists := r.policy.Roles[role]
	if !exists {
		return false
	}

	for _, perm := range def.Permissions {
		if perm.Resource != "*" && perm.Resource != resource {
			continue
		}
		for _, act := range perm.Actions {
			if act == "*" || act == action {
				return true
			}
		}
	}
	return false
}

// Roles returns the role names defined in the policy.
func (r *RBAC) Roles() []string {
	names := make([]string, 0, len(r.policy.Roles))
	for name := range r.policy.Roles {
		names = append(names, name)
	}
	return names
}
