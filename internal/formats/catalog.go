package formats

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"gm-batch-converter/internal/domain"
)

//go:embed formats.yaml
var catalogYAML []byte

// Catalog is the set of output formats and recognized input extensions.
type Catalog struct {
	output    []domain.FormatOption
	byID      map[string]domain.FormatOption
	aliases   map[string]string
	inputExts map[string]struct{}
}

type catalogFile struct {
	Output          []domain.FormatOption `yaml:"output"`
	InputExtensions []string              `yaml:"input_extensions"`
	Aliases         map[string]string     `yaml:"aliases"`
}

var defaultCatalog = mustParse(catalogYAML)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	return defaultCatalog
}

// Parse builds a catalog from a YAML document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse format catalog: %w", err)
	}
	if len(file.Output) == 0 {
		return nil, fmt.Errorf("format catalog has no output formats")
	}

	c := &Catalog{
		output:    make([]domain.FormatOption, 0, len(file.Output)),
		byID:      make(map[string]domain.FormatOption, len(file.Output)),
		aliases:   make(map[string]string, len(file.Aliases)),
		inputExts: make(map[string]struct{}, len(file.InputExtensions)),
	}
	for _, option := range file.Output {
		id := strings.ToLower(strings.TrimSpace(option.ID))
		if id == "" {
			return nil, fmt.Errorf("format catalog entry %q has no id", option.Name)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("duplicate format id: %s", id)
		}
		option.ID = id
		c.output = append(c.output, option)
		c.byID[id] = option
	}
	for alias, target := range file.Aliases {
		c.aliases[strings.ToLower(alias)] = strings.ToLower(target)
	}
	for _, ext := range file.InputExtensions {
		c.inputExts[normalizeExt(ext)] = struct{}{}
	}

	return c, nil
}

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns output formats in display order.
func (c *Catalog) All() []domain.FormatOption {
	out := make([]domain.FormatOption, len(c.output))
	copy(out, c.output)
	return out
}

// Lookup resolves a format id or alias, ignoring case and a leading dot.
func (c *Catalog) Lookup(id string) (domain.FormatOption, bool) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), ".")
	if target, ok := c.aliases[key]; ok {
		key = target
	}
	option, ok := c.byID[key]
	return option, ok
}

// ForExtension finds the output format whose files use ext.
func (c *Catalog) ForExtension(ext string) (domain.FormatOption, bool) {
	return c.Lookup(normalizeExt(ext))
}

// IsInputExtension reports whether the scanner should pick up files with ext.
func (c *Catalog) IsInputExtension(ext string) bool {
	_, ok := c.inputExts[normalizeExt(ext)]
	return ok
}

// IsInputFile reports whether path has a recognized image extension.
func (c *Catalog) IsInputFile(path string) bool {
	return c.IsInputExtension(filepath.Ext(path))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
