package config

import (
	"fmt"
	"os"
	"strings"
)

// LoadBells reads an ordered list of "HH:MM" slot starts from a YAML or JSON
// file. An empty path returns nil, nil.
func LoadBells(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := decodeStrict(path, b, &out); err != nil {
		return nil, fmt.Errorf("bells file %s: %w", path, err)
	}
	return out, nil
}
