package fileloader

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config"
)

// HostnamePlaceholder is replaced with the monitored host before parsing.
const HostnamePlaceholder = "{hostname}"

// FileLoader loads configuration from a file on disk. JSON documents are
// valid YAML, so both formats are accepted.
type FileLoader struct {
	// path is the filesystem path to the configuration file.
	path string
	// hostname is substituted for every HostnamePlaceholder in the document.
	hostname string
}

// NewFileLoader creates a FileLoader for the file at path that substitutes
// hostname into the document template.
func NewFileLoader(path, hostname string) *FileLoader {
	return &FileLoader{path: path, hostname: hostname}
}

// Load reads the file, substitutes the hostname placeholder, decodes the
// result on top of the defaults and validates it. Every call produces a fresh
// snapshot.
func (l *FileLoader) Load(ctx context.Context) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	data = bytes.ReplaceAll(data, []byte(HostnamePlaceholder), []byte(l.hostname))

	cfg := config.Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
