// Package widget is the synchronization core of an embeddable form widget.
//
// A Widget binds to a host document application through a narrow capability
// surface (Host plus optional interfaces), keeps the host's options, table
// identity and column schema in observable stores, and turns user payloads
// into row creations on the attached table.
package widget

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-formwidget/pkg/activity"
	"github.com/goliatone/go-formwidget/pkg/observe"
	"github.com/goliatone/go-formwidget/pkg/rules"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Option configures a Widget.
type Option func(*config)

type config struct {
	logger          logrus.FieldLogger
	accessLevel     AccessLevel
	fallbackTableID string
	mappingMode     MappingMode
	columnSlots     []ColumnSlot
	widgetID        string
	functions       *rules.FunctionRegistry
	activityHooks   activity.Hooks
	activityChannel string
}

func defaultConfig() config {
	return config{
		logger:          logrus.StandardLogger(),
		accessLevel:     AccessFull,
		fallbackTableID: DefaultFallbackTableID,
		mappingMode:     MappingAuto,
		columnSlots:     DefaultColumnSlots(),
	}
}

// WithLogger sets the logger used by every component.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithAccessLevel overrides the "full" access level requested on readiness.
func WithAccessLevel(level AccessLevel) Option {
	return func(cfg *config) {
		if level != "" {
			cfg.accessLevel = level
		}
	}
}

// WithFallbackTableID sets the table used when no table id is known.
func WithFallbackTableID(tableID string) Option {
	return func(cfg *config) {
		if id := strings.TrimSpace(tableID); id != "" {
			cfg.fallbackTableID = id
		}
	}
}

// WithMappingMode fixes the label resolution strategy.
func WithMappingMode(mode MappingMode) Option {
	return func(cfg *config) {
		if mode != "" {
			cfg.mappingMode = mode
		}
	}
}

// WithColumnSlots replaces the logical columns declared for declarative
// mapping.
func WithColumnSlots(slots []ColumnSlot) Option {
	return func(cfg *config) {
		if len(slots) > 0 {
			cfg.columnSlots = append([]ColumnSlot(nil), slots...)
		}
	}
}

// WithWidgetID sets the id stamped on activity events. A random id is used
// otherwise.
func WithWidgetID(id string) Option {
	return func(cfg *config) {
		cfg.widgetID = strings.TrimSpace(id)
	}
}

// WithFunctionRegistry sets the functions visible to computed fields.
func WithFunctionRegistry(registry *rules.FunctionRegistry) Option {
	return func(cfg *config) {
		cfg.functions = registry
	}
}

// Widget owns the stores and the host binding for one widget instance.
type Widget struct {
	binding Binding
	cfg     config
	mode    MappingMode
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	options   *OptionsStore
	schema    *SchemaStore
	resolver  *MappingResolver
	submitter *RowSubmitter
	rows      *observe.Subject[[]Row]
	edits     *observe.Subject[struct{}]
	events    *eventSink

	initOnce sync.Once
	initErr  error
}

// New negotiates host capabilities and builds the stores. host may be nil,
// in which case the widget runs in standalone mode.
func New(host Host, opts ...Option) *Widget {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.widgetID == "" {
		cfg.widgetID = uuid.NewString()
	}

	log := cfg.logger.WithField("widget_id", cfg.widgetID)
	binding := Negotiate(host)
	ctx, cancel := context.WithCancel(context.Background())
	events := newEventSink(ctx, cfg, log)

	w := &Widget{
		binding: binding,
		cfg:     cfg,
		mode:    resolveMode(cfg.mappingMode, binding),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		rows:    observe.New(observe.WithReplay[[]Row](nil)),
		edits:   observe.New[struct{}](),
		events:  events,
	}
	w.options = newOptionsStore(binding, log, events)
	w.schema = newSchemaStore(ctx, binding, log, events)
	w.resolver = &MappingResolver{mode: w.mode, schema: w.schema}
	w.submitter = newRowSubmitter(binding, cfg, w.schema, w.resolver, w.options, log, events)
	return w
}

func resolveMode(mode MappingMode, b Binding) MappingMode {
	if mode == MappingDeclarative || mode == MappingSchema {
		return mode
	}
	if b.Capabilities().ColumnMapping {
		return MappingDeclarative
	}
	return MappingSchema
}

// Initialize declares readiness to the host and registers the host
// listeners. It runs once; later calls return the first result. Without a
// host it logs one warning and returns nil.
func (w *Widget) Initialize(ctx context.Context) error {
	w.initOnce.Do(func() {
		w.initErr = w.initialize(ctx)
	})
	return w.initErr
}

func (w *Widget) initialize(ctx context.Context) error {
	if !w.binding.Present() {
		w.log.WithError(ErrHostAbsent).Warn("no host detected, running standalone")
		return nil
	}
	req := ReadyRequest{AccessLevel: w.cfg.accessLevel}
	caps := w.binding.Capabilities()
	if caps.ColumnMapping && w.mode == MappingDeclarative {
		req.Columns = append([]ColumnSlot(nil), w.cfg.columnSlots...)
	}
	if err := w.binding.host.DeclareReady(ctx, req); err != nil {
		return fmt.Errorf("widget: declare ready: %w", err)
	}

	if w.binding.options != nil {
		w.binding.options.OnOptions(w.options.OnHostPush)
	}
	if w.binding.edits != nil {
		w.binding.edits.OnEditOptions(func() {
			w.edits.Publish(struct{}{})
		})
	}
	w.binding.host.OnRecords(w.onRecords)

	w.log.WithFields(logrus.Fields{
		"access_level": w.cfg.accessLevel,
		"mode":         w.mode,
	}).Debug("widget ready")
	w.events.emit(activity.BuildReadyEvent(activity.EventInput{
		Metadata: map[string]any{"mode": string(w.mode), "access_level": string(w.cfg.accessLevel)},
	}))
	return nil
}

func (w *Widget) onRecords(event RecordsEvent) {
	if event.Mapping != nil {
		w.schema.SetMapping(event.Mapping)
		if missing := w.missingSlots(event.Mapping); len(missing) > 0 {
			w.log.WithField("missing", missing).Warn("column mapping incomplete")
			w.schema.OnTableIdentityResolved("")
			w.rows.Publish(nil)
			return
		}
	}

	tableID := strings.TrimSpace(event.TableID)
	if tableID == "" && w.binding.locator != nil {
		if identity, ok := w.binding.locator.GetTable(); ok {
			tableID = identity.TableID
		}
	}
	w.schema.OnTableIdentityResolved(tableID)
	w.rows.Publish(mapRows(event.Records, event.Mapping))
}

func (w *Widget) missingSlots(mapping ColumnMapping) []string {
	var missing []string
	for _, slot := range w.cfg.columnSlots {
		if slot.Optional {
			continue
		}
		if strings.TrimSpace(mapping[slot.Name]) == "" {
			missing = append(missing, slot.Name)
		}
	}
	return missing
}

// mapRows renames record fields from real column ids back to logical keys
// when a mapping is present. The "id" field becomes Row.ID.
func mapRows(records []map[string]any, mapping ColumnMapping) []Row {
	reverse := make(map[string]string, len(mapping))
	for key, columnID := range mapping {
		if columnID != "" {
			reverse[columnID] = key
		}
	}
	rows := make([]Row, 0, len(records))
	for _, record := range records {
		row := Row{Fields: make(map[string]any, len(record))}
		for name, value := range record {
			if name == "id" {
				row.ID = toInt64(value)
				continue
			}
			if key, ok := reverse[name]; ok {
				name = key
			}
			row.Fields[name] = value
		}
		rows = append(rows, row)
	}
	return rows
}

func toInt64(value any) int64 {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case fmt.Stringer:
		var n int64
		_, _ = fmt.Sscan(v.String(), &n)
		return n
	default:
		return 0
	}
}

// Options returns the options store.
func (w *Widget) Options() *OptionsStore { return w.options }

// Schema returns the schema store.
func (w *Widget) Schema() *SchemaStore { return w.schema }

// Resolver returns the label resolver.
func (w *Widget) Resolver() *MappingResolver { return w.resolver }

// Submitter returns the row submitter.
func (w *Widget) Submitter() *RowSubmitter { return w.submitter }

// Binding returns the negotiated host binding.
func (w *Widget) Binding() Binding { return w.binding }

// Mode returns the mapping strategy chosen at construction.
func (w *Widget) Mode() MappingMode { return w.mode }

// Rows subscribes listener to the mapped records of the attached table. The
// last delivery is replayed on subscribe.
func (w *Widget) Rows(listener func([]Row)) {
	if listener == nil {
		return
	}
	w.rows.Subscribe(func(rows []Row) {
		listener(append([]Row(nil), rows...))
	})
}

// EditRequests subscribes listener to the host's edit-configuration action.
func (w *Widget) EditRequests(listener func()) {
	if listener == nil {
		return
	}
	w.edits.Subscribe(func(struct{}) { listener() })
}

// Submit is shorthand for Submitter().Submit.
func (w *Widget) Submit(ctx context.Context, payload RowPayload, explicitTableID string) error {
	return w.submitter.Submit(ctx, payload, explicitTableID)
}

// Close cancels in-flight schema fetches and waits for them to return. Table
// identities reported after Close no longer start fetches.
func (w *Widget) Close() error {
	w.cancel()
	w.schema.close()
	return nil
}
