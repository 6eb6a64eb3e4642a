// Package config provides the routewarden configuration schema and loading.
//
// Configuration comes from a YAML file (routewarden.yaml), environment
// variables with the ROUTEWARDEN_ prefix, or both. The policy table can
// live inline under guard.policies or in a standalone file referenced by
// guard.policies_file; the standalone file wins on pattern collisions.
package config

// Config is the top-level routewarden configuration.
type Config struct {
	// Server configures the HTTP listener and logging.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Guard configures the decision engine: roles, policies, redirects.
	Guard GuardConfig `yaml:"guard" mapstructure:"guard"`

	// Auth configures API keys for the decision API.
	// Optional: an empty key list leaves the API open (development mode).
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Audit configures where decision records are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables development defaults (debug logging, seeded roles).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// TLS is out of scope; terminate it at a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8484").
	// Defaults to "127.0.0.1:8484" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	// Defaults to "info". DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects the slog handler: "text" or "json".
	// Defaults to "text".
	LogFormat string `yaml:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text json"`
}

// GuardConfig configures the decision engine.
type GuardConfig struct {
	// SignInPath is the route unauthenticated visitors are redirected to.
	// Defaults to "/signin".
	SignInPath string `yaml:"sign_in_path" mapstructure:"sign_in_path" validate:"omitempty,startswith=/"`

	// ReturnToParam is the query parameter carrying the original path
	// through the sign-in redirect. Defaults to "return_to".
	ReturnToParam string `yaml:"return_to_param" mapstructure:"return_to_param"`

	// HomePath is the default landing page. Defaults to "/".
	HomePath string `yaml:"home_path" mapstructure:"home_path" validate:"omitempty,startswith=/"`

	// DefaultFallback is the redirect target for role and condition denials
	// when the matched policy has no fallback. Defaults to HomePath.
	DefaultFallback string `yaml:"default_fallback" mapstructure:"default_fallback" validate:"omitempty,startswith=/"`

	// AuthOnlyPaths are exact paths meaningful only to unauthenticated
	// visitors. Authenticated requests for them are redirected away.
	AuthOnlyPaths []string `yaml:"auth_only_paths" mapstructure:"auth_only_paths" validate:"omitempty,dive,startswith=/"`

	// CacheSize bounds the decision cache. Defaults to 1000.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`

	// Roles maps each role name to the permissions it grants. Role names
	// referenced anywhere else in the config must appear here.
	Roles map[string][]string `yaml:"roles" mapstructure:"roles"`

	// Policies is the inline policy table.
	Policies []PolicyConfig `yaml:"policies" mapstructure:"policies" validate:"omitempty,dive"`

	// PoliciesFile points to a standalone YAML file holding roles and
	// policies. Entries there are merged over the inline table.
	PoliciesFile string `yaml:"policies_file" mapstructure:"policies_file"`
}

// PolicyConfig defines the access requirement for one route pattern.
type PolicyConfig struct {
	// Pattern is an exact absolute path or a "/*" prefix wildcard.
	Pattern string `yaml:"pattern" mapstructure:"pattern" validate:"required,route_pattern"`

	// RequiredRoles is the non-empty set of roles, any one of which
	// satisfies the policy.
	RequiredRoles []string `yaml:"required_roles" mapstructure:"required_roles" validate:"required,min=1"`

	// RequiresAuth requires an authenticated identity.
	RequiresAuth bool `yaml:"requires_auth" mapstructure:"requires_auth"`

	// Fallback overrides the default redirect for role/condition denials.
	Fallback string `yaml:"fallback" mapstructure:"fallback" validate:"omitempty,startswith=/"`

	// Condition is an optional CEL expression over path, roles,
	// authenticated, and subject_id.
	Condition string `yaml:"condition" mapstructure:"condition"`
}

// AuthConfig configures decision API authentication.
type AuthConfig struct {
	// APIKeys are the accepted caller credentials, stored as hashes.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines one API key.
type APIKeyConfig struct {
	// Name labels the caller for logs and audit.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// KeyHash is the stored hash: SHA-256 hex (optionally "sha256:"
	// prefixed) or an Argon2id PHC string.
	// Generate with: routewarden hash-key
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required"`
}

// AuditConfig configures decision record output.
type AuditConfig struct {
	// Output is "stdout", "file://<absolute-dir>", or
	// "sqlite://<absolute-path>". Defaults to "stdout".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// RetentionDays is how long file audit logs are kept. Defaults to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// BufferSize is the in-memory ring size used by the dev-mode store.
	// Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	// Enabled turns span export on. Spans go to stdout as JSON lines.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only; exposing the API needs an explicit addr.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8484"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}

	if c.Guard.SignInPath == "" {
		c.Guard.SignInPath = "/signin"
	}
	if c.Guard.ReturnToParam == "" {
		c.Guard.ReturnToParam = "return_to"
	}
	if c.Guard.HomePath == "" {
		c.Guard.HomePath = "/"
	}
	if c.Guard.DefaultFallback == "" {
		c.Guard.DefaultFallback = c.Guard.HomePath
	}
	if c.Guard.CacheSize == 0 {
		c.Guard.CacheSize = 1000
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}
}

// SetDevDefaults applies permissive defaults for development mode, so the
// server runs with an empty config file. Applied before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	if len(c.Guard.Roles) == 0 {
		c.Guard.Roles = map[string][]string{
			"admin": {"manage:all"},
			"user":  {"view:content"},
		}
	}
	if len(c.Guard.AuthOnlyPaths) == 0 {
		c.Guard.AuthOnlyPaths = []string{c.Guard.SignInPath}
	}
}
