package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfigFile(t *testing.T) {
	violetDir := t.TempDir()
	t.Setenv(VioletDirEnv, violetDir)

	homeFile := filepath.Join(violetDir, "relay.yaml")
	if err := os.WriteFile(homeFile, []byte("relay: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	currentDir := t.TempDir()
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(originalWd) }()
	if err := os.Chdir(currentDir); err != nil {
		t.Fatal(err)
	}

	currentFile := filepath.Join(currentDir, "local.yaml")
	if err := os.WriteFile(currentFile, []byte("relay: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	confDir := filepath.Join(currentDir, "conf.d")
	if err := os.Mkdir(confDir, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "file in current directory", input: "local.yaml", expected: currentFile},
		{name: "extension appended", input: "local", expected: currentFile},
		{name: "file in violet directory", input: "relay.yaml", expected: homeFile},
		{name: "violet directory without extension", input: "relay", expected: homeFile},
		{name: "directory", input: "conf.d", expected: confDir},
		{name: "absolute path", input: homeFile, expected: homeFile},
		{name: "absolute path without extension", input: filepath.Join(violetDir, "relay"), expected: homeFile},
		{name: "nonexistent file", input: "nonexistent", wantErr: true},
		{name: "empty name", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolveConfigFile(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			// Resolve symlinks for comparison (important on macOS where /var -> /private/var)
			expectedResolved, err := filepath.EvalSymlinks(tt.expected)
			if err != nil {
				expectedResolved = tt.expected
			}
			resultResolved, err := filepath.EvalSymlinks(result)
			if err != nil {
				resultResolved = result
			}
			if resultResolved != expectedResolved {
				t.Errorf("expected %s, got %s", expectedResolved, resultResolved)
			}
		})
	}
}
