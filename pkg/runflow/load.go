package runflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadGraphFile reads a GraphSpec from a .yaml, .yml or .json file and
// validates it.
func LoadGraphFile(path string) (*GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}

	var spec *GraphSpec
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		spec, err = ParseGraphYAML(data)
	case ".json":
		spec, err = ParseGraphJSON(data)
	default:
		return nil, fmt.Errorf("unsupported graph file extension: %s", ext)
	}
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph %s: %w", path, err)
	}
	return spec, nil
}

// ParseGraphYAML decodes a GraphSpec without validating it.
func ParseGraphYAML(data []byte) (*GraphSpec, error) {
	var spec GraphSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse graph yaml: %w", err)
	}
	return &spec, nil
}

// ParseGraphJSON decodes a GraphSpec without validating it.
func ParseGraphJSON(data []byte) (*GraphSpec, error) {
	var spec GraphSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse graph json: %w", err)
	}
	return &spec, nil
}
