package memhost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	widget "github.com/goliatone/go-formwidget"
)

// ErrUnknownTable is returned for operations on a table that does not exist.
var ErrUnknownTable = errors.New("memhost: unknown table")

// Option configures a Host.
type Option func(*Host)

// WithTable adds a table with the given columns.
func WithTable(tableID string, columns ...widget.TableColumn) Option {
	return func(h *Host) {
		h.tables[tableID] = &table{columns: append([]widget.TableColumn(nil), columns...)}
	}
}

// WithColumnMapping makes the host support declarative column slots and
// report mapping on every records event.
func WithColumnMapping(mapping widget.ColumnMapping) Option {
	return func(h *Host) {
		h.mapper = true
		h.mapping = mapping.Clone()
	}
}

// WithOptions seeds the persisted options blob.
func WithOptions(options map[string]any) Option {
	return func(h *Host) {
		h.options = cloneRecord(options)
	}
}

// Host is a minimal in-memory widget.Host.
type Host struct {
	mu sync.RWMutex

	tables    map[string]*table
	attached  string
	mapping   widget.ColumnMapping
	mapper    bool
	options   map[string]any
	ready     []widget.ReadyRequest
	fetchErrs map[string]error
	createErr error

	recordListeners []func(widget.RecordsEvent)
	optionListeners []func(map[string]any)
	editListeners   []func()
}

type table struct {
	columns []widget.TableColumn
	rows    []map[string]any
	nextID  int64
}

var (
	_ widget.Host          = (*Host)(nil)
	_ widget.OptionsSource = (*Host)(nil)
	_ widget.OptionsSaver  = (*Host)(nil)
	_ widget.EditRequester = (*Host)(nil)
	_ widget.TableLocator  = (*Host)(nil)
	_ widget.SchemaSource  = (*Host)(nil)
	_ widget.ColumnMapper  = (*Host)(nil)
)

// New constructs an empty host.
func New(opts ...Option) *Host {
	h := &Host{
		tables:    map[string]*table{},
		fetchErrs: map[string]error{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// DeclareReady records the request. Requests are exposed through Ready.
func (h *Host) DeclareReady(_ context.Context, req widget.ReadyRequest) error {
	h.mu.Lock()
	h.ready = append(h.ready, req)
	h.mu.Unlock()
	return nil
}

// Ready returns every readiness request received so far.
func (h *Host) Ready() []widget.ReadyRequest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]widget.ReadyRequest(nil), h.ready...)
}

func (h *Host) OnRecords(fn func(widget.RecordsEvent)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.recordListeners = append(h.recordListeners, fn)
	h.mu.Unlock()
}

func (h *Host) OnOptions(fn func(map[string]any)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.optionListeners = append(h.optionListeners, fn)
	h.mu.Unlock()
}

func (h *Host) OnEditOptions(fn func()) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.editListeners = append(h.editListeners, fn)
	h.mu.Unlock()
}

// SetOptions persists options and echoes them to options listeners, the way
// a real host confirms a save.
func (h *Host) SetOptions(_ context.Context, options map[string]any) error {
	h.mu.Lock()
	h.options = cloneRecord(options)
	listeners := append(([]func(map[string]any))(nil), h.optionListeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cloneRecord(options))
	}
	return nil
}

// Options returns the persisted options blob, or nil.
func (h *Host) Options() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneRecord(h.options)
}

// PushOptions delivers raw to options listeners without persisting it. A nil
// raw simulates the host's transient empty push.
func (h *Host) PushOptions(raw map[string]any) {
	h.mu.RLock()
	listeners := append(([]func(map[string]any))(nil), h.optionListeners...)
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(cloneRecord(raw))
	}
}

// RequestEdit simulates the user opening the widget configuration.
func (h *Host) RequestEdit() {
	h.mu.RLock()
	listeners := append(([]func())(nil), h.editListeners...)
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

func (h *Host) GetTable() (widget.TableIdentity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.attached == "" {
		return widget.TableIdentity{}, false
	}
	return widget.TableIdentity{TableID: h.attached}, true
}

// FetchTable returns the table's columns as host descriptors and its rows.
func (h *Host) FetchTable(ctx context.Context, tableID string) (widget.TableData, error) {
	if err := ctx.Err(); err != nil {
		return widget.TableData{}, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.fetchErrs[tableID]; err != nil {
		return widget.TableData{}, err
	}
	t, ok := h.tables[tableID]
	if !ok {
		return widget.TableData{}, fmt.Errorf("%w: %q", ErrUnknownTable, tableID)
	}
	columns := make([]map[string]any, 0, len(t.columns))
	for _, column := range t.columns {
		columns = append(columns, map[string]any{
			"id":    column.ID,
			"label": column.Label,
			"type":  column.Type,
		})
	}
	return widget.TableData{Columns: columns, Records: cloneRows(t.rows)}, nil
}

func (h *Host) SupportsColumnMapping() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mapper
}

// CreateRecords appends records to tableID, assigning sequential ids, and
// fires a records event when tableID is the attached table.
func (h *Host) CreateRecords(ctx context.Context, tableID string, records []widget.Record) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	if h.createErr != nil {
		err := h.createErr
		h.mu.Unlock()
		return nil, err
	}
	t, ok := h.tables[tableID]
	if !ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, tableID)
	}
	ids := make([]int64, 0, len(records))
	for _, record := range records {
		t.nextID++
		row := cloneRecord(record.Fields)
		if row == nil {
			row = map[string]any{}
		}
		row["id"] = t.nextID
		t.rows = append(t.rows, row)
		ids = append(ids, t.nextID)
	}
	fire := tableID == h.attached
	h.mu.Unlock()

	if fire {
		h.emitRecords()
	}
	return ids, nil
}

// Attach points the widget at tableID and fires a records event.
func (h *Host) Attach(tableID string) error {
	h.mu.Lock()
	if _, ok := h.tables[tableID]; !ok && tableID != "" {
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownTable, tableID)
	}
	h.attached = tableID
	h.mu.Unlock()
	h.emitRecords()
	return nil
}

// SetMapping changes the declarative mapping and fires a records event.
func (h *Host) SetMapping(mapping widget.ColumnMapping) {
	h.mu.Lock()
	h.mapper = true
	h.mapping = mapping.Clone()
	h.mu.Unlock()
	h.emitRecords()
}

// FailFetch makes FetchTable for tableID return err. A nil err clears it.
func (h *Host) FailFetch(tableID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.fetchErrs, tableID)
		return
	}
	h.fetchErrs[tableID] = err
}

// FailCreate makes CreateRecords return err. A nil err clears it.
func (h *Host) FailCreate(err error) {
	h.mu.Lock()
	h.createErr = err
	h.mu.Unlock()
}

// Rows returns a copy of the rows stored in tableID.
func (h *Host) Rows(tableID string) []map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.tables[tableID]
	if !ok {
		return nil
	}
	return cloneRows(t.rows)
}

// Tables returns the table ids, sorted.
func (h *Host) Tables() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.tables))
	for id := range h.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Host) emitRecords() {
	h.mu.RLock()
	event := widget.RecordsEvent{
		TableID: h.attached,
		Mapping: h.mapping.Clone(),
	}
	if t, ok := h.tables[h.attached]; ok {
		event.Records = cloneRows(t.rows)
	}
	listeners := append(([]func(widget.RecordsEvent))(nil), h.recordListeners...)
	h.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

func cloneRecord(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

func cloneRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, cloneRecord(row))
	}
	return out
}
