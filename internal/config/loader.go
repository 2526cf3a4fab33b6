package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is the file name looked up in the working and the
	// home directory.
	DefaultConfigFile = ".sitescrape"

	// XDGConfigFile is the file name looked up in XDGConfigDir.
	XDGConfigFile = "config.yaml"
)

// LoadConfigFile reads and validates the YAML file at path.
// A missing file yields ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user supplied path
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	file := NewFile()
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if file.Sites == nil {
		file.Sites = make(map[string]SiteConfig)
	}

	return file, file.Validate()
}

// SearchPaths returns the implicit config file locations in lookup order:
// the working directory, the home directory, then the XDG config directory.
func SearchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DefaultConfigFile))
	}
	return append(paths, filepath.Join(XDGConfigDir(), XDGConfigFile))
}

// FindConfigFile returns configPath if it names an existing file, or the
// first existing entry of SearchPaths when configPath is empty. It returns
// "" when nothing is found.
func FindConfigFile(configPath string) string {
	candidates := SearchPaths()
	if configPath != "" {
		candidates = []string{configPath}
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
