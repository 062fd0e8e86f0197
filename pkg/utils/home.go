// Package utils provides utility functions for violet
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// VioletDirEnv is the environment variable that overrides the violet configuration directory
	VioletDirEnv = "VIOLET_DIR"
	// VioletHome is the name of the configuration directory under the user's home
	VioletHome = ".violet"
)

// GetHome returns the user's home directory in a portable way
func GetHome() (string, error) {
	var home string

	if runtime.GOOS == "windows" {
		home = os.Getenv("USERPROFILE")
		if home == "" {
			home = os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
		}
	} else {
		home = os.Getenv("HOME")
	}

	if home == "" {
		return "", fmt.Errorf("unable to determine home directory")
	}

	return home, nil
}

// GetVioletHome returns the violet configuration directory: $VIOLET_DIR when
// set, otherwise ~/.violet
func GetVioletHome() (string, error) {
	if dir := os.Getenv(VioletDirEnv); dir != "" {
		return dir, nil
	}

	home, err := GetHome()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, VioletHome), nil
}
