package probe

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of an agent's monitoring configuration,
// grounded on rathix-command-center's internal/config/loader.go YAML
// loading idiom and overcli/commands.py's "monitor <config>" subcommand,
// which took a config file the original left unimplemented.
type FileConfig struct {
	Server struct {
		URL  string `yaml:"url"`
		Name string `yaml:"name"`
		Key  string `yaml:"key"`
	} `yaml:"server"`
	Services []struct {
		Name    string `yaml:"name"`
		Cwd     string `yaml:"cwd"`
		Command string `yaml:"command"`
		Period  string `yaml:"period"`
		MaxLag  string `yaml:"maxLag"`
	} `yaml:"services"`
}

// LoadConfigFile reads and parses a YAML monitoring config file, expanding
// ${ENV_VAR} references before parsing.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	data = []byte(os.Expand(string(data), os.Getenv))

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	if fc.Server.URL == "" {
		return nil, errors.New("config: server.url is required")
	}
	if len(fc.Services) == 0 {
		return nil, errors.New("config: at least one service is required")
	}
	return &fc, nil
}

// BuildServices converts the parsed file entries into Scheduler-ready Services.
func (fc *FileConfig) BuildServices() ([]*Service, error) {
	services := make([]*Service, 0, len(fc.Services))
	for i, s := range fc.Services {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("services[%d].name: required field missing", i)
		}
		period, err := time.ParseDuration(s.Period)
		if err != nil {
			return nil, fmt.Errorf("services[%d].period: %w", i, err)
		}
		var maxLag time.Duration
		if s.MaxLag != "" {
			maxLag, err = time.ParseDuration(s.MaxLag)
			if err != nil {
				return nil, fmt.Errorf("services[%d].maxLag: %w", i, err)
			}
		}
		services = append(services, &Service{
			Name:    name,
			Cwd:     s.Cwd,
			Command: s.Command,
			Period:  period,
			MaxLag:  maxLag,
		})
	}
	return services, nil
}
