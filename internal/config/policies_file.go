package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/routewarden/routewarden/internal/domain/guard"
)

// PoliciesFile is the schema of a standalone policy file. Keeping the
// policy table in its own file lets operators reload it over SIGHUP or
// POST /v1/reload without touching server settings.
type PoliciesFile struct {
	// Roles adds to or overrides the inline guard.roles map.
	Roles map[string][]string `yaml:"roles"`

	// Policies are merged over the inline table; a pattern defined in both
	// places takes the standalone file's definition.
	Policies []PolicyConfig `yaml:"policies"`
}

// MergePoliciesFile loads a standalone policy file and merges it into the
// guard section.
func (c *Config) MergePoliciesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policies file: %w", err)
	}

	var pf PoliciesFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to parse policies file %s: %w", path, err)
	}

	if len(pf.Roles) > 0 && c.Guard.Roles == nil {
		c.Guard.Roles = make(map[string][]string, len(pf.Roles))
	}
	for name, perms := range pf.Roles {
		c.Guard.Roles[name] = perms
	}

	byPattern := make(map[string]int, len(c.Guard.Policies))
	for i, p := range c.Guard.Policies {
		byPattern[p.Pattern] = i
	}
	for _, p := range pf.Policies {
		if i, ok := byPattern[p.Pattern]; ok {
			c.Guard.Policies[i] = p
			continue
		}
		c.Guard.Policies = append(c.Guard.Policies, p)
	}
	return nil
}

// RoleGrants converts the configured role map to domain types.
func (c *Config) RoleGrants() map[guard.Role][]guard.Permission {
	grants := make(map[guard.Role][]guard.Permission, len(c.Guard.Roles))
	for name, perms := range c.Guard.Roles {
		ps := make([]guard.Permission, len(perms))
		for i, p := range perms {
			ps[i] = guard.Permission(p)
		}
		grants[guard.Role(name)] = ps
	}
	return grants
}

// GuardPolicies converts the configured policy table to domain types.
func (c *Config) GuardPolicies() []guard.RoutePolicy {
	out := make([]guard.RoutePolicy, len(c.Guard.Policies))
	for i, p := range c.Guard.Policies {
		roles := make([]guard.Role, len(p.RequiredRoles))
		for j, r := range p.RequiredRoles {
			roles[j] = guard.Role(r)
		}
		out[i] = guard.RoutePolicy{
			Pattern:       p.Pattern,
			RequiredRoles: roles,
			RequiresAuth:  p.RequiresAuth,
			Fallback:      p.Fallback,
			Condition:     p.Condition,
		}
	}
	return out
}
