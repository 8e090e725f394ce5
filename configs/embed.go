package configs

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

// DefaultCatalog is the catalog used when no file is configured.
const DefaultCatalog = "default.yaml"

// WindowsCatalog backs the same capabilities with cmd.exe and PowerShell.
const WindowsCatalog = "windows.yaml"

// ForPlatform returns the embedded catalog for the given GOOS value.
func ForPlatform(goos string) string {
	if goos == "windows" {
		return WindowsCatalog
	}
	return DefaultCatalog
}

//go:embed *.yaml
var embeddedConfigs embed.FS

// Names returns the list of embedded catalog filenames.
func Names() []string {
	entries, err := fs.Glob(embeddedConfigs, "*.yaml")
	if err != nil {
		return nil
	}
	sort.Strings(entries)
	return entries
}

// Load returns the embedded catalog by filename.
func Load(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("embedded catalog name is empty")
	}
	data, err := fs.ReadFile(embeddedConfigs, name)
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog %q: %w", name, err)
	}
	return data, nil
}
