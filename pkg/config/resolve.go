package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inercia/violet/pkg/common"
	"github.com/inercia/violet/pkg/utils"
)

// Load resolves a configuration location and loads it.
//
// The location may be an http(s) URL, a YAML file, a directory whose YAML
// files are merged in lexical order, or a name looked up in the current
// directory and then in the violet configuration directory. Defaults are
// not applied.
//
// Parameters:
//   - location: Where to load the configuration from
//   - logger: Logger for tracing the resolution
//
// Returns:
//   - The loaded configuration
//   - An error if the location cannot be resolved or parsed
func Load(location string, logger *common.Logger) (*Config, error) {
	if location == "" {
		return nil, fmt.Errorf("configuration file path is empty")
	}

	if common.IsURL(location) {
		logger.Info("Downloading configuration from URL: %s", location)
		data, err := common.FetchURLText(location)
		if err != nil {
			return nil, fmt.Errorf("failed to download configuration: %w", err)
		}
		config, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", location, err)
		}
		return config, nil
	}

	localPath := location
	if parsed, err := url.Parse(location); err == nil && parsed.Scheme == "file" {
		localPath = parsed.Path
	}

	resolved, err := utils.ResolveConfigFile(localPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to access configuration %s: %w", resolved, err)
	}
	if info.IsDir() {
		return loadConfigDirectory(resolved, logger)
	}

	if !isYAMLFile(resolved) {
		return nil, fmt.Errorf("configuration file must have .yaml or .yml extension: %s", resolved)
	}

	logger.Info("Using local configuration file: %s", resolved)
	return LoadConfig(resolved)
}

// loadConfigDirectory loads all YAML files directly inside a directory and
// merges them in lexical order.
func loadConfigDirectory(dirPath string, logger *common.Logger) (*Config, error) {
	logger.Info("Scanning directory for YAML configuration files: %s", dirPath)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	var yamlFiles []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		yamlFiles = append(yamlFiles, filepath.Join(dirPath, entry.Name()))
	}
	sort.Strings(yamlFiles)

	if len(yamlFiles) == 0 {
		return nil, fmt.Errorf("no YAML files found in directory: %s", dirPath)
	}

	merged := &Config{}
	for _, path := range yamlFiles {
		logger.Debug("Loading configuration fragment: %s", path)
		fragment, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		merged.Merge(fragment)
	}

	logger.Info("Merged %d configuration files from %s", len(yamlFiles), dirPath)
	return merged, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
