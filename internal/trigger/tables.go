package trigger

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultTables []byte

var ErrInvalidTables = errors.New("invalid keyword tables")

// Table is the keyword set and priming line for one sub-flow
type Table struct {
	Keywords []string `yaml:"keywords"`
	Priming  string   `yaml:"priming"`
}

// Tables holds every keyword table. Field order carries no priority.
type Tables struct {
	Crisis     Table `yaml:"crisis"`
	Depression Table `yaml:"depression"`
	Anxiety    Table `yaml:"anxiety"`
}

// DefaultTables returns the embedded tables
func DefaultTables() (Tables, error) {
	return ParseTables(defaultTables)
}

// LoadTables reads tables from a YAML file
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read keyword tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes and validates YAML tables
func ParseTables(data []byte) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, fmt.Errorf("failed to parse keyword tables: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

func (t *Tables) normalize() {
	for _, table := range []*Table{&t.Crisis, &t.Depression, &t.Anxiety} {
		for i, k := range table.Keywords {
			table.Keywords[i] = strings.ToLower(strings.TrimSpace(k))
		}
		table.Priming = strings.TrimSpace(table.Priming)
	}
}

// Validate checks that every table is populated and that no keyword appears in two tables
func (t Tables) Validate() error {
	owner := map[string]string{}
	named := []struct {
		name  string
		table Table
	}{
		{"crisis", t.Crisis},
		{"depression", t.Depression},
		{"anxiety", t.Anxiety},
	}

	for _, n := range named {
		if len(n.table.Keywords) == 0 {
			return fmt.Errorf("%w: %s has no keywords", ErrInvalidTables, n.name)
		}
		if n.table.Priming == "" {
			return fmt.Errorf("%w: %s has no priming message", ErrInvalidTables, n.name)
		}
		for _, k := range n.table.Keywords {
			if k == "" {
				return fmt.Errorf("%w: %s has an empty keyword", ErrInvalidTables, n.name)
			}
			if prev, ok := owner[k]; ok && prev != n.name {
				return fmt.Errorf("%w: keyword %q in both %s and %s", ErrInvalidTables, k, prev, n.name)
			}
			owner[k] = n.name
		}
	}
	return nil
}
