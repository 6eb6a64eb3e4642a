package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/routewarden/routewarden/internal/domain/route"
)

// RegisterCustomValidators registers routewarden-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	if err := v.RegisterValidation("route_pattern", validateRoutePattern); err != nil {
		return fmt.Errorf("failed to register route_pattern validator: %w", err)
	}
	return nil
}

// validateAuditOutput accepts "stdout", "file://<absolute-dir>", or
// "sqlite://<absolute-path>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "stdout" {
		return true
	}
	for _, scheme := range []string{"file://", "sqlite://"} {
		if strings.HasPrefix(output, scheme) {
			path := strings.TrimPrefix(output, scheme)
			return path != "" && filepath.IsAbs(path)
		}
	}
	return false
}

// validateRoutePattern accepts exact absolute paths and "/*" wildcards,
// using the same parser the engine compiles with so configuration errors
// surface at validation time with the engine's exact rules.
func validateRoutePattern(fl validator.FieldLevel) bool {
	_, err := route.Parse(fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validatePolicyRoles(); err != nil {
		return err
	}
	return c.validatePolicyAmbiguity()
}

// validatePolicyRoles ensures every role a policy requires is defined in
// guard.roles. Catching this at load time keeps unknown-role failures out
// of the request path.
func (c *Config) validatePolicyRoles() error {
	for i, p := range c.Guard.Policies {
		for _, r := range p.RequiredRoles {
			if _, ok := c.Guard.Roles[r]; !ok {
				return fmt.Errorf("guard.policies[%d] (%s): references undefined role %q", i, p.Pattern, r)
			}
		}
	}
	return nil
}

// validatePolicyAmbiguity rejects duplicate exact patterns and duplicate
// wildcard prefixes, mirroring the engine's compile-time checks.
func (c *Config) validatePolicyAmbiguity() error {
	seen := make(map[string]int, len(c.Guard.Policies))
	for i, p := range c.Guard.Policies {
		if prev, dup := seen[p.Pattern]; dup {
			return fmt.Errorf("guard.policies[%d] (%s): duplicates guard.policies[%d]", i, p.Pattern, prev)
		}
		seen[p.Pattern] = i
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to actionable messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout', 'file://<absolute-dir>', or 'sqlite://<absolute-path>'", field)
	case "route_pattern":
		return fmt.Sprintf("%s must be an absolute path, optionally ending in \"/*\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
