package widget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// WidgetOptions is the small configuration blob the host persists for one
// widget instance. The host owns it; the widget keeps a cached copy.
type WidgetOptions struct {
	ColumnCount    int              `json:"columnCount" validate:"gte=0"`
	Questions      []QuestionConfig `json:"questions" validate:"dive"`
	ExternalURL    string           `json:"externalUrl,omitempty" validate:"omitempty,url"`
	ComputedFields []ComputedField  `json:"computedFields,omitempty" validate:"dive"`
}

// Clone returns a deep copy so cached options never alias caller slices.
func (o WidgetOptions) Clone() WidgetOptions {
	out := o
	if o.Questions != nil {
		out.Questions = append([]QuestionConfig{}, o.Questions...)
	}
	if o.ComputedFields != nil {
		out.ComputedFields = append([]ComputedField{}, o.ComputedFields...)
	}
	return out
}

// QuestionConfig is one form question. Slice order is display order.
type QuestionConfig struct {
	ID             int       `json:"id" validate:"gte=0"`
	Question       string    `json:"question"`
	TargetColumnID ColumnRef `json:"targetColumnId"`
}

// ComputedField fills ColumnID from an expression evaluated at submit time.
type ComputedField struct {
	ColumnID string `json:"columnId" validate:"required"`
	Expr     string `json:"expr" validate:"required"`
	Engine   string `json:"engine,omitempty" validate:"omitempty,oneof=expr cel js"`
}

// ColumnRef references a real column by string id or integer id. The zero
// value is null, meaning the question is unmapped.
type ColumnRef struct {
	str   string
	num   int64
	isNum bool
	set   bool
}

// StringColumn references a column by its string id.
func StringColumn(id string) ColumnRef {
	return ColumnRef{str: id, set: true}
}

// IntColumn references a column by its numeric id.
func IntColumn(id int64) ColumnRef {
	return ColumnRef{num: id, isNum: true, set: true}
}

// IsNull reports whether the reference is unmapped.
func (r ColumnRef) IsNull() bool {
	return !r.set
}

// IsInt reports whether the reference holds a numeric id.
func (r ColumnRef) IsInt() bool {
	return r.set && r.isNum
}

// String renders the reference as a column id, or "" when null.
func (r ColumnRef) String() string {
	switch {
	case !r.set:
		return ""
	case r.isNum:
		return strconv.FormatInt(r.num, 10)
	default:
		return r.str
	}
}

// MarshalJSON keeps the original shape: string, integer or null.
func (r ColumnRef) MarshalJSON() ([]byte, error) {
	switch {
	case !r.set:
		return []byte("null"), nil
	case r.isNum:
		return []byte(strconv.FormatInt(r.num, 10)), nil
	default:
		return json.Marshal(r.str)
	}
}

// UnmarshalJSON accepts a string, an integer or null.
func (r *ColumnRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = ColumnRef{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*r = StringColumn(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("widget: column reference must be string, integer or null: %w", err)
	}
	id, err := n.Int64()
	if err != nil {
		return fmt.Errorf("widget: column reference %s is not an integer", n)
	}
	*r = IntColumn(id)
	return nil
}

// TableIdentity names the host table the widget is bound to.
type TableIdentity struct {
	TableID string `json:"tableId"`
}

// TableColumn is one real column of the attached table.
type TableColumn struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// ColumnMapping maps a logical key ("col1") to a real column id. An empty
// value means the host reports the slot as unmapped.
type ColumnMapping map[string]string

// Clone returns a copy of m.
func (m ColumnMapping) Clone() ColumnMapping {
	if m == nil {
		return nil
	}
	out := make(ColumnMapping, len(m))
	for key, value := range m {
		out[key] = value
	}
	return out
}

// RowPayload maps a logical field label to the value typed by the user.
type RowPayload map[string]string

// Row is one record delivered by the host, after mapping.
type Row struct {
	ID     int64          `json:"id"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Record is the field set sent to the host for row creation.
type Record struct {
	Fields map[string]any `json:"fields"`
}

// ColumnSlot is a logical column declared to the host for declarative mapping.
type ColumnSlot struct {
	Name     string `json:"name" mapstructure:"name"`
	Title    string `json:"title" mapstructure:"title"`
	Type     string `json:"type" mapstructure:"type"`
	Optional bool   `json:"optional" mapstructure:"optional"`
}

// DefaultColumnSlots returns the three logical columns declared when no slots
// are configured.
func DefaultColumnSlots() []ColumnSlot {
	return []ColumnSlot{
		{Name: "col1", Title: "Colonne 1", Type: "Any"},
		{Name: "col2", Title: "Colonne 2", Type: "Any"},
		{Name: "col3", Title: "Colonne 3", Type: "Any"},
	}
}
