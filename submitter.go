package widget

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formwidget/pkg/activity"
	"github.com/goliatone/go-formwidget/pkg/rules"
	"github.com/sirupsen/logrus"
)

// DefaultFallbackTableID is used when neither the caller nor the host names
// a target table.
const DefaultFallbackTableID = "Table1"

// RowSubmitter turns a logical payload into a host field set and asks the
// host to create one row from it.
type RowSubmitter struct {
	host     Host
	present  bool
	schema   *SchemaStore
	resolver *MappingResolver
	options  *OptionsStore
	fallback string
	log      logrus.FieldLogger
	events   *eventSink

	rulesMu    sync.Mutex
	evaluators map[string]rules.Evaluator
	cache      rules.ProgramCache
	functions  *rules.FunctionRegistry
}

func newRowSubmitter(b Binding, cfg config, schema *SchemaStore, resolver *MappingResolver, options *OptionsStore, log logrus.FieldLogger, events *eventSink) *RowSubmitter {
	functions := cfg.functions
	if functions == nil {
		functions = rules.DefaultFunctions()
	}
	return &RowSubmitter{
		host:       b.host,
		present:    b.present,
		schema:     schema,
		resolver:   resolver,
		options:    options,
		fallback:   cfg.fallbackTableID,
		log:        log.WithField("component", "submitter"),
		events:     events,
		evaluators: make(map[string]rules.Evaluator),
		cache:      rules.NewMemoryCache(),
		functions:  functions,
	}
}

// TargetTable returns the table a submission would go to: explicit when
// non-empty, else the current table id, else the fallback.
func (s *RowSubmitter) TargetTable(explicitTableID string) string {
	if id := strings.TrimSpace(explicitTableID); id != "" {
		return id
	}
	if id := s.schema.TableID(); id != "" {
		return id
	}
	return s.fallback
}

// Submit resolves every label of payload and creates one row in the target
// table. Unresolved labels are dropped with a warning. In standalone mode
// Submit logs and returns nil without calling anything. A host rejection is
// returned as a *RowCreationError.
func (s *RowSubmitter) Submit(ctx context.Context, payload RowPayload, explicitTableID string) error {
	if !s.present {
		s.log.Warn("submit skipped: standalone mode")
		return nil
	}
	tableID := s.TargetTable(explicitTableID)
	fields := s.Resolve(payload)
	s.applyComputed(payload, fields, tableID)

	ids, err := s.host.CreateRecords(ctx, tableID, []Record{{Fields: fields}})
	if err != nil {
		s.log.WithError(err).WithField("table_id", tableID).Error("host rejected row creation")
		s.events.emit(activity.BuildRowFailedEvent(activity.EventInput{
			TableID: tableID,
			Columns: fieldNames(fields),
			Err:     err,
		}))
		return &RowCreationError{TableID: tableID, Fields: fields, Err: err}
	}

	input := activity.EventInput{TableID: tableID, Columns: fieldNames(fields)}
	if len(ids) > 0 {
		input.ObjectID = tableID + "/" + strconv.FormatInt(ids[0], 10)
	}
	s.events.emit(activity.BuildRowCreatedEvent(input))
	return nil
}

// Resolve maps payload labels to real column ids, in label order.
func (s *RowSubmitter) Resolve(payload RowPayload) map[string]any {
	labels := make([]string, 0, len(payload))
	for label := range payload {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fields := make(map[string]any, len(payload))
	for _, label := range labels {
		columnID, ok := s.resolver.Resolve(label)
		if !ok {
			s.log.WithField("label", label).Warn("no column mapping found, dropping field")
			continue
		}
		fields[columnID] = payload[label]
	}
	return fields
}

func (s *RowSubmitter) applyComputed(payload RowPayload, fields map[string]any, tableID string) {
	if s.options == nil {
		return
	}
	options, ok := s.options.Current()
	if !ok || len(options.ComputedFields) == 0 {
		return
	}
	for _, field := range options.ComputedFields {
		columnID := strings.TrimSpace(field.ColumnID)
		if columnID == "" {
			continue
		}
		if _, supplied := fields[columnID]; supplied {
			continue
		}
		evaluator, err := s.evaluator(field.Engine)
		if err != nil {
			err = &rules.EvaluationError{Engine: field.Engine, ColumnID: columnID, Expr: field.Expr, Err: err}
			s.log.WithError(err).Warn("computed field skipped")
			continue
		}
		value, err := evaluator.Evaluate(rules.Context{
			Payload:  payload,
			Fields:   fields,
			TableID:  tableID,
			ColumnID: columnID,
		}, field.Expr)
		if err != nil {
			s.log.WithError(err).Warn("computed field skipped")
			continue
		}
		fields[columnID] = value
	}
}

func (s *RowSubmitter) evaluator(engine string) (rules.Evaluator, error) {
	key := strings.ToLower(strings.TrimSpace(engine))
	if key == "" {
		key = rules.EngineExpr
	}
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()
	if evaluator, ok := s.evaluators[key]; ok {
		return evaluator, nil
	}
	evaluator, err := rules.New(key, rules.WithProgramCache(s.cache), rules.WithFunctionRegistry(s.functions))
	if err != nil {
		return nil, err
	}
	s.evaluators[key] = evaluator
	return evaluator, nil
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
