package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"contentline/internal/domain"
)

// Config models contentline.yml.
type Config struct {
	Workflow struct {
		RequireRejectComment bool `yaml:"require_reject_comment"`
	} `yaml:"workflow"`
	Roster   []RosterEntry `yaml:"roster"`
	Webhooks []Webhook     `yaml:"webhooks"`
	Server   struct {
		JWTSecret string `yaml:"jwt_secret"`
		// AllowLegacyActorHeader accepts a plain X-Actor-Id header in place
		// of a token. Development convenience only.
		AllowLegacyActorHeader bool `yaml:"allow_legacy_actor_header"`
	} `yaml:"server"`
}

// RosterEntry binds an acting identity to its workflow role.
type RosterEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Webhook is one outbound delivery target fed from the system log.
type Webhook struct {
	URL     string   `yaml:"url"`
	Secret  string   `yaml:"secret"`
	Actions []string `yaml:"actions"`
}

var validRoles = map[string]bool{
	string(domain.RoleWriter):   true,
	string(domain.RoleCine):     true,
	string(domain.RoleEditor):   true,
	string(domain.RoleDesigner): true,
	string(domain.RoleCMO):      true,
	string(domain.RoleCEO):      true,
	string(domain.RoleOps):      true,
	string(domain.RoleAdmin):    true,
	string(domain.RoleObserver): true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, entry := range c.Roster {
		if entry.ID == "" {
			return fmt.Errorf("roster[%d]: id is required", i)
		}
		if seen[entry.ID] {
			return fmt.Errorf("roster: duplicate actor id %s", entry.ID)
		}
		seen[entry.ID] = true
		if !validRoles[entry.Role] {
			return fmt.Errorf("roster actor %s: unknown role %q", entry.ID, entry.Role)
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhooks[%d]: url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "contentline.yml")
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML text.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `workflow:
  require_reject_comment: true

roster:
  - id: writer-1
    name: Writer
    role: WRITER
  - id: cine-1
    name: Cinematographer
    role: CINE
  - id: editor-1
    name: Editor
    role: EDITOR
  - id: designer-1
    name: Designer
    role: DESIGNER
  - id: cmo-1
    name: CMO
    role: CMO
  - id: ceo-1
    name: CEO
    role: CEO
  - id: ops-1
    name: Ops
    role: OPS

webhooks: []

server:
  jwt_secret: ""
  allow_legacy_actor_header: false
`
