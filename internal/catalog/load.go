package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Load parses YAML bytes into a Catalog, applies defaults and validates it.
func Load(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cat Catalog
	if err := dec.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: catalog is empty")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// LoadFile renders and loads a catalog file.
func LoadFile(path string) (*Catalog, error) {
	rendered, err := RenderFile(path)
	if err != nil {
		return nil, err
	}
	return Load(rendered)
}

// LoadBytes renders and loads a catalog template held in memory.
func LoadBytes(name string, raw []byte) (*Catalog, error) {
	rendered, err := RenderBytes(name, raw)
	if err != nil {
		return nil, err
	}
	return Load(rendered)
}
