// Package devhost is a local development host backed by SQLite.
//
// Tables are real SQLite tables and their columns come from
// pragma_table_info. The widget options blob is persisted as JSON in the
// _widget_options table. Rows created through CreateRecords fire a records
// event when they land in the attached table.
package devhost

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	widget "github.com/goliatone/go-formwidget"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// OptionsTable stores one options blob per widget key.
const OptionsTable = "_widget_options"

// ErrUnknownTable is returned for tables missing from the database.
var ErrUnknownTable = errors.New("devhost: unknown table")

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Host) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithMapping enables declarative column slots and reports mapping on every
// records event.
func WithMapping(mapping widget.ColumnMapping) Option {
	return func(h *Host) {
		h.mapper = true
		h.mapping = mapping.Clone()
	}
}

// WithWidgetKey selects the options row; the default key is "default".
func WithWidgetKey(key string) Option {
	return func(h *Host) {
		if key = strings.TrimSpace(key); key != "" {
			h.widgetKey = key
		}
	}
}

// Host implements widget.Host and its optional capabilities over SQLite.
type Host struct {
	db        *sql.DB
	log       logrus.FieldLogger
	widgetKey string

	mu              sync.RWMutex
	attached        string
	mapping         widget.ColumnMapping
	mapper          bool
	ready           []widget.ReadyRequest
	recordListeners []func(widget.RecordsEvent)
	optionListeners []func(map[string]any)
	editListeners   []func()
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

// Open opens the SQLite database at dsn and prepares the options table.
func Open(ctx context.Context, dsn string, opts ...Option) (*Host, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("devhost: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	h := &Host{db: db, log: logrus.StandardLogger(), widgetKey: "default"}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.log = h.log.WithField("component", "devhost")

	if err := h.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

func (h *Host) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + OptionsTable + ` (
			widget_key TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := h.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("devhost: migrate: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying database, mostly to seed tables.
func (h *Host) DB() *sql.DB {
	return h.db
}

// Close closes the database.
func (h *Host) Close() error {
	return h.db.Close()
}

func (h *Host) DeclareReady(_ context.Context, req widget.ReadyRequest) error {
	h.mu.Lock()
	h.ready = append(h.ready, req)
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{
		"access_level": req.AccessLevel,
		"columns":      len(req.Columns),
	}).Info("widget declared ready")
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

// RequestEdit fans out an edit request to registered listeners.
func (h *Host) RequestEdit() {
	h.mu.RLock()
	listeners := append(([]func())(nil), h.editListeners...)
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

func (h *Host) SupportsColumnMapping() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mapper
}

// SetOptions upserts the options blob and echoes it to options listeners.
func (h *Host) SetOptions(ctx context.Context, options map[string]any) error {
	payload, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("devhost: encode options: %w", err)
	}
	_, err = h.db.ExecContext(ctx,
		`INSERT INTO `+OptionsTable+`(widget_key, payload, updated_at) VALUES(?,?,?)
		ON CONFLICT(widget_key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		h.widgetKey, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("devhost: save options: %w", err)
	}
	h.pushOptions(options)
	return nil
}

// LoadOptions reads the persisted options blob. ok is false when nothing was
// saved yet.
func (h *Host) LoadOptions(ctx context.Context) (map[string]any, bool, error) {
	var payload string
	err := h.db.QueryRowContext(ctx,
		`SELECT payload FROM `+OptionsTable+` WHERE widget_key=?`, h.widgetKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("devhost: load options: %w", err)
	}
	var options map[string]any
	if err := json.Unmarshal([]byte(payload), &options); err != nil {
		return nil, false, fmt.Errorf("devhost: decode options: %w", err)
	}
	return options, true, nil
}

// PublishOptions pushes the persisted options to listeners, or an empty
// push when nothing is stored.
func (h *Host) PublishOptions(ctx context.Context) error {
	options, _, err := h.LoadOptions(ctx)
	if err != nil {
		return err
	}
	h.pushOptions(options)
	return nil
}

func (h *Host) pushOptions(options map[string]any) {
	h.mu.RLock()
	listeners := append(([]func(map[string]any))(nil), h.optionListeners...)
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(options)
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

// Tables lists user tables, sorted, excluding the options table.
func (h *Host) Tables(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' AND name != ?`, OptionsTable)
	if err != nil {
		return nil, fmt.Errorf("devhost: list tables: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, rows.Err()
}

func (h *Host) tableExists(ctx context.Context, tableID string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, tableID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("devhost: lookup table %q: %w", tableID, err)
	}
	return n > 0 && tableID != OptionsTable, nil
}

// FetchTable reads column descriptors from pragma_table_info and every row.
func (h *Host) FetchTable(ctx context.Context, tableID string) (widget.TableData, error) {
	ok, err := h.tableExists(ctx, tableID)
	if err != nil {
		return widget.TableData{}, err
	}
	if !ok {
		return widget.TableData{}, fmt.Errorf("%w: %q", ErrUnknownTable, tableID)
	}

	rows, err := h.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, tableID)
	if err != nil {
		return widget.TableData{}, fmt.Errorf("devhost: table info %q: %w", tableID, err)
	}
	var columns []map[string]any
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			rows.Close()
			return widget.TableData{}, err
		}
		columns = append(columns, map[string]any{"id": name, "label": name, "type": sqliteType(typ)})
	}
	if err := rows.Close(); err != nil {
		return widget.TableData{}, err
	}

	records, err := h.readRows(ctx, tableID)
	if err != nil {
		return widget.TableData{}, err
	}
	return widget.TableData{Columns: columns, Records: records}, nil
}

func (h *Host) readRows(ctx context.Context, tableID string) ([]map[string]any, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT rowid, * FROM `+quoteIdent(tableID)+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("devhost: read rows %q: %w", tableID, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(names))
		targets := make([]any, len(names))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(names))
		for i, name := range names[1:] {
			record[name] = normalizeValue(values[i+1])
		}
		record["id"] = values[0]
		out = append(out, record)
	}
	return out, rows.Err()
}

// CreateRecords inserts records in one transaction and returns their rowids.
func (h *Host) CreateRecords(ctx context.Context, tableID string, records []widget.Record) ([]int64, error) {
	ok, err := h.tableExists(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, tableID)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("devhost: begin: %w", err)
	}
	ids := make([]int64, 0, len(records))
	for _, record := range records {
		id, err := insertRecord(ctx, tx, tableID, record.Fields)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("devhost: commit: %w", err)
	}
	h.log.WithFields(logrus.Fields{"table_id": tableID, "rows": len(ids)}).Info("rows created")

	h.mu.RLock()
	attached := h.attached
	h.mu.RUnlock()
	if attached == tableID {
		if err := h.emitRecords(ctx); err != nil {
			h.log.WithError(err).Warn("records event failed")
		}
	}
	return ids, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, tableID string, fields map[string]any) (int64, error) {
	var res sql.Result
	var err error
	if len(fields) == 0 {
		res, err = tx.ExecContext(ctx, `INSERT INTO `+quoteIdent(tableID)+` DEFAULT VALUES`)
	} else {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		quoted := make([]string, len(names))
		marks := make([]string, len(names))
		args := make([]any, len(names))
		for i, name := range names {
			quoted[i] = quoteIdent(name)
			marks[i] = "?"
			args[i] = fields[name]
		}
		stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			quoteIdent(tableID), strings.Join(quoted, ", "), strings.Join(marks, ", "))
		res, err = tx.ExecContext(ctx, stmt, args...)
	}
	if err != nil {
		return 0, fmt.Errorf("devhost: insert into %q: %w", tableID, err)
	}
	return res.LastInsertId()
}

// Attach points the widget at tableID and fires a records event.
func (h *Host) Attach(ctx context.Context, tableID string) error {
	if tableID != "" {
		ok, err := h.tableExists(ctx, tableID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTable, tableID)
		}
	}
	h.mu.Lock()
	h.attached = tableID
	h.mu.Unlock()
	return h.emitRecords(ctx)
}

func (h *Host) emitRecords(ctx context.Context) error {
	h.mu.RLock()
	event := widget.RecordsEvent{TableID: h.attached, Mapping: h.mapping.Clone()}
	listeners := append(([]func(widget.RecordsEvent))(nil), h.recordListeners...)
	h.mu.RUnlock()

	if event.TableID != "" {
		records, err := h.readRows(ctx, event.TableID)
		if err != nil {
			return err
		}
		event.Records = records
	}
	for _, fn := range listeners {
		fn(event)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sqliteType maps a declared SQLite type to a widget column type.
func sqliteType(declared string) string {
	t := strings.ToUpper(declared)
	switch {
	case t == "":
		return "Any"
	case strings.Contains(t, "INT"):
		return "Int"
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return "Text"
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return "Numeric"
	case strings.Contains(t, "BOOL"):
		return "Bool"
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return "Date"
	default:
		return "Any"
	}
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
