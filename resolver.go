package widget

import (
	"fmt"
	"strconv"
	"strings"
)

// MappingMode selects how logical labels become real column ids.
type MappingMode string

const (
	// MappingAuto picks declarative when the host supports column mapping.
	MappingAuto MappingMode = "auto"
	// MappingDeclarative resolves labels through the host's ColumnMapping.
	MappingDeclarative MappingMode = "declarative"
	// MappingSchema resolves labels against the discovered schema.
	MappingSchema MappingMode = "schema"
)

// ParseMappingMode accepts the configuration spelling of a mode.
func ParseMappingMode(s string) (MappingMode, error) {
	switch mode := MappingMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "", MappingAuto:
		return MappingAuto, nil
	case MappingDeclarative, MappingSchema:
		return mode, nil
	default:
		return "", fmt.Errorf("widget: unknown mapping mode %q", s)
	}
}

// LogicalKeyToConfigKey derives the logical column key from a label by its
// trailing integer: "Colonne 3" becomes "col3". Labels without a trailing
// integer yield false.
func LogicalKeyToConfigKey(label string) (string, bool) {
	trimmed := strings.TrimSpace(label)
	end := len(trimmed)
	start := end
	for start > 0 && trimmed[start-1] >= '0' && trimmed[start-1] <= '9' {
		start--
	}
	if start == end {
		return "", false
	}
	n, err := strconv.Atoi(trimmed[start:end])
	if err != nil {
		return "", false
	}
	return "col" + strconv.Itoa(n), true
}

// ResolveDeclarative maps label through mapping using its logical key.
func ResolveDeclarative(label string, mapping ColumnMapping) (string, bool) {
	key, ok := LogicalKeyToConfigKey(label)
	if !ok {
		return "", false
	}
	columnID := strings.TrimSpace(mapping[key])
	if columnID == "" {
		return "", false
	}
	return columnID, true
}

// ResolveSchema treats label as a real column. Without a schema the label is
// returned unchanged; with one it must match a column id or, failing that, a
// column label.
func ResolveSchema(label string, columns []TableColumn) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	if len(columns) == 0 {
		return label, true
	}
	for _, column := range columns {
		if column.ID == label {
			return column.ID, true
		}
	}
	for _, column := range columns {
		if column.Label == label {
			return column.ID, true
		}
	}
	return "", false
}

// MappingResolver resolves labels with the strategy fixed at startup.
type MappingResolver struct {
	mode   MappingMode
	schema *SchemaStore
}

// Mode reports the active strategy.
func (r *MappingResolver) Mode() MappingMode {
	return r.mode
}

// Resolve returns the real column id for label. Absence is a normal outcome.
func (r *MappingResolver) Resolve(label string) (string, bool) {
	if r == nil || r.schema == nil {
		return "", false
	}
	if r.mode == MappingDeclarative {
		return ResolveDeclarative(label, r.schema.Mapping())
	}
	return ResolveSchema(label, r.schema.Columns())
}
