package config

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}
	return LoadFs(afero.NewBasePathFs(afero.NewOsFs(), path))
}

// LoadFs loads and validates the configuration stored at the root of fs.
func LoadFs(fs afero.Fs) (*Configuration, error) {
	configContents, err := afero.ReadFile(fs, ConfigurationName)
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigurationName, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigurationName, err)
	}
	out.configFs = fs
	return &out, nil
}

// Initialize writes the default configuration into dir unless one is
// already there, then loads it.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	fs := afero.NewBasePathFs(afero.NewOsFs(), dir)
	if err := InitializeFs(fs, logger); err != nil {
		return nil, err
	}
	return LoadFs(fs)
}

// InitializeFs writes the default configuration to the root of fs.
func InitializeFs(fs afero.Fs, logger *log.Logger) error {
	exists, err := afero.Exists(fs, ConfigurationName)
	if err != nil {
		return err
	}
	if exists {
		logger.Info("configuration already exists, leaving it alone", "file", ConfigurationName)
		return nil
	}

	logger.Info("writing default configuration", "file", ConfigurationName)
	return afero.WriteFile(fs, ConfigurationName, defaultConfigData, 0600)
}
