package devhost

import (
	"fmt"
	"os"
	"sort"

	widget "github.com/goliatone/go-formwidget"
	"gopkg.in/yaml.v3"
)

// MappingFile is the YAML form of a declarative column setup:
//
//	mapping:
//	  col1: Titre
//	  col3: Debut
//	columns:
//	  - name: col1
//	    title: Colonne 1
type MappingFile struct {
	Mapping map[string]string `yaml:"mapping"`
	Columns []SlotEntry       `yaml:"columns"`
}

// SlotEntry is one declared logical column.
type SlotEntry struct {
	Name     string `yaml:"name"`
	Title    string `yaml:"title"`
	Type     string `yaml:"type"`
	Optional bool   `yaml:"optional"`
}

// LoadMappingFile reads and parses a YAML mapping file.
func LoadMappingFile(path string) (*MappingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devhost: read mapping file %s: %w", path, err)
	}
	return ParseMapping(data)
}

// ParseMapping parses YAML mapping data. Every key must be a logical column
// key of the form colN.
func ParseMapping(data []byte) (*MappingFile, error) {
	var mf MappingFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("devhost: parse mapping: %w", err)
	}
	keys := make([]string, 0, len(mf.Mapping))
	for key := range mf.Mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if normalized, ok := widget.LogicalKeyToConfigKey(key); !ok || normalized != key {
			return nil, fmt.Errorf("devhost: mapping key %q is not a logical column key", key)
		}
	}
	for i := range mf.Columns {
		slot := &mf.Columns[i]
		if slot.Name == "" {
			return nil, fmt.Errorf("devhost: column %d has no name", i)
		}
		if slot.Type == "" {
			slot.Type = "Any"
		}
		if slot.Title == "" {
			slot.Title = slot.Name
		}
	}
	return &mf, nil
}

// ColumnMapping returns the mapping as a widget.ColumnMapping.
func (mf *MappingFile) ColumnMapping() widget.ColumnMapping {
	if mf == nil || mf.Mapping == nil {
		return nil
	}
	return widget.ColumnMapping(mf.Mapping).Clone()
}

// Slots returns the declared columns, or nil when none are listed.
func (mf *MappingFile) Slots() []widget.ColumnSlot {
	if mf == nil || len(mf.Columns) == 0 {
		return nil
	}
	slots := make([]widget.ColumnSlot, 0, len(mf.Columns))
	for _, entry := range mf.Columns {
		slots = append(slots, widget.ColumnSlot{
			Name:     entry.Name,
			Title:    entry.Title,
			Type:     entry.Type,
			Optional: entry.Optional,
		})
	}
	return slots
}
