package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of config.yaml fields that are read directly from
// the file rather than through the viper singleton. Needed when checking
// config before viper is initialized, or when SW_HOME changed after init.
type LocalConfig struct {
	DatabaseURL    string `yaml:"database-url"`
	Listen         string `yaml:"listen"`
	PartnerBaseURL string `yaml:"partner-base-url"`
}

// LoadLocalConfig reads and parses config.yaml from dir, bypassing viper.
// Returns an empty LocalConfig (not nil) if the file is missing or
// unparseable.
func LoadLocalConfig(dir string) *LocalConfig {
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return &LocalConfig{}
	}
	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}
