package cachebay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// identityFile is the YAML shape LoadIdentityConfig reads: a declarative
// alternative to constructing Config.Interfaces in code (spec SPEC_FULL §11
// "loading cache.Config identity/interface declarations from a YAML file").
// KeyFuncs are Go functions and so have no YAML representation; callers that
// need custom key functions set Config.KeyFuncs directly after loading.
type identityFile struct {
	Interfaces          map[string][]string `yaml:"interfaces"`
	DefaultDecisionMode string              `yaml:"default_decision_mode"`
}

// LoadIdentityConfig reads a YAML file declaring interface-to-implementation
// mappings and the default decision mode into a Config, for callers that
// prefer declarative identity configuration over building Config by hand.
func LoadIdentityConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cachebay: read identity config %q: %w", path, err)
	}

	var file identityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("cachebay: parse identity config %q: %w", path, err)
	}

	cfg := Config{Interfaces: file.Interfaces}
	if file.DefaultDecisionMode != "" {
		cfg.DefaultDecisionMode = DecisionMode(file.DefaultDecisionMode)
	}
	return cfg, nil
}
