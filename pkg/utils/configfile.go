package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveConfigFile resolves a configuration file or directory name:
//  1. If the name has no extension and does not exist as given, .yaml is appended
//  2. Absolute paths are used as-is
//  3. Relative paths are looked up in the current directory, then in the
//     violet configuration directory
//
// Returns an error if nothing is found.
func ResolveConfigFile(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("configuration file name is empty")
	}

	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = append(candidates, name+".yaml")
	}

	if filepath.IsAbs(name) {
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				return c, nil
			}
		}
		return "", fmt.Errorf("configuration file not found: %s", name)
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			absPath, err := filepath.Abs(c)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path for %s: %w", c, err)
			}
			return absPath, nil
		}
	}

	home, err := GetVioletHome()
	if err != nil {
		return "", fmt.Errorf("configuration file %s not found in the current directory: %w", name, err)
	}

	searched := make([]string, 0, 2*len(candidates))
	searched = append(searched, candidates...)
	for _, c := range candidates {
		p := filepath.Join(home, c)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		searched = append(searched, p)
	}

	return "", fmt.Errorf("configuration file not found. Searched in: %v", searched)
}
