package widget

import (
	"context"
	"reflect"
)

// AccessLevel is the permission the widget requests when declaring readiness.
type AccessLevel string

const (
	AccessNone      AccessLevel = "none"
	AccessReadTable AccessLevel = "read table"
	AccessFull      AccessLevel = "full"
)

// ReadyRequest is sent once to the host before any other call.
type ReadyRequest struct {
	AccessLevel AccessLevel
	// Columns is set only when the host supports declarative column mapping.
	Columns []ColumnSlot
}

// RecordsEvent is delivered by the host whenever the attachment changes.
type RecordsEvent struct {
	Records []map[string]any
	// Mapping is nil when the host sent no column mapping.
	Mapping ColumnMapping
	// TableID is empty when the host did not include the table identity.
	TableID string
}

// TableData is the host's answer to a schema fetch. Column descriptors are
// loosely shaped; see normalizeColumns for the accepted keys.
type TableData struct {
	Columns []map[string]any
	Records []map[string]any
}

// Host is the capability surface every host must provide.
type Host interface {
	DeclareReady(ctx context.Context, req ReadyRequest) error
	OnRecords(fn func(RecordsEvent))
	CreateRecords(ctx context.Context, tableID string, records []Record) ([]int64, error)
}

// OptionsSource pushes the widget options blob. A nil map is an empty push.
type OptionsSource interface {
	OnOptions(fn func(map[string]any))
}

// OptionsSaver persists the widget options blob.
type OptionsSaver interface {
	SetOptions(ctx context.Context, options map[string]any) error
}

// EditRequester notifies the widget when the user opens its configuration.
type EditRequester interface {
	OnEditOptions(fn func())
}

// TableLocator answers which table the widget is attached to.
type TableLocator interface {
	GetTable() (TableIdentity, bool)
}

// SchemaSource fetches the columns of a table.
type SchemaSource interface {
	FetchTable(ctx context.Context, tableID string) (TableData, error)
}

// ColumnMapper marks hosts supporting declarative logical column slots.
type ColumnMapper interface {
	SupportsColumnMapping() bool
}

// Capabilities lists the optional host facilities detected at startup.
type Capabilities struct {
	Options       bool
	SaveOptions   bool
	EditRequests  bool
	TableLocator  bool
	Schema        bool
	ColumnMapping bool
}

// Binding is the result of capability negotiation: either absent (standalone
// mode) or present with a fixed set of capabilities.
type Binding struct {
	present bool
	caps    Capabilities

	host    Host
	options OptionsSource
	saver   OptionsSaver
	edits   EditRequester
	locator TableLocator
	schema  SchemaSource
}

// Negotiate inspects host once and records which optional interfaces it
// implements. A nil host, including a typed nil pointer, is absent.
func Negotiate(host Host) Binding {
	if isNil(host) {
		return Binding{}
	}
	b := Binding{present: true, host: host}
	if v, ok := host.(OptionsSource); ok {
		b.options, b.caps.Options = v, true
	}
	if v, ok := host.(OptionsSaver); ok {
		b.saver, b.caps.SaveOptions = v, true
	}
	if v, ok := host.(EditRequester); ok {
		b.edits, b.caps.EditRequests = v, true
	}
	if v, ok := host.(TableLocator); ok {
		b.locator, b.caps.TableLocator = v, true
	}
	if v, ok := host.(SchemaSource); ok {
		b.schema, b.caps.Schema = v, true
	}
	if v, ok := host.(ColumnMapper); ok && v.SupportsColumnMapping() {
		b.caps.ColumnMapping = true
	}
	return b
}

// Present reports whether a host was detected.
func (b Binding) Present() bool {
	return b.present
}

// Capabilities returns the negotiated capability set; zero when absent.
func (b Binding) Capabilities() Capabilities {
	return b.caps
}

func isNil(host Host) bool {
	if host == nil {
		return true
	}
	v := reflect.ValueOf(host)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}
