package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when --config is not given.
const EnvConfigPath = "CDPINJECT_CONFIG"

// DefaultUserAgent is sent by launched browsers unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultSettleDelay is how long to wait after a reload has reported
// navigation complete. It is a heuristic: the load signal alone fires before
// some pages finish setting cookies.
const DefaultSettleDelay = 600 * time.Millisecond

// Settings are the file-backed defaults that flags do not cover.
type Settings struct {
	UserAgent   string        `yaml:"user_agent"`
	SettleDelay time.Duration `yaml:"settle_delay"`

	// AlwaysStealth applies the stealth patches even without --stealth.
	AlwaysStealth bool `yaml:"always_stealth"`
	// IncognitoContextOnLaunch makes --incognito create a separate browser
	// context in launch mode too, instead of passing the --incognito switch.
	IncognitoContextOnLaunch bool `yaml:"incognito_context_on_launch"`

	ExecPath      string         `yaml:"exec_path"`
	UserDataDir   string         `yaml:"user_data_dir"`
	ProbeEndpoint bool           `yaml:"probe_endpoint"`
	ExtraFlags    map[string]any `yaml:"extra_flags"`
}

func defaults() Settings {
	return Settings{
		UserAgent:     DefaultUserAgent,
		SettleDelay:   DefaultSettleDelay,
		ProbeEndpoint: true,
	}
}

// Defaults returns the settings used when no settings file is present.
func Defaults() Settings { return defaults() }

// Load reads a YAML settings file over the defaults. An empty path yields the
// defaults unchanged.
func Load(path string) (Settings, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if cfg.SettleDelay < 0 {
		return cfg, errors.New("settle_delay must be >= 0")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return cfg, nil
}

// ResolvePath picks the settings file: the explicit flag value first, then
// the environment.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvConfigPath)
}
