package widget

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-formwidget/pkg/activity"
	"github.com/goliatone/go-formwidget/pkg/observe"
	"github.com/sirupsen/logrus"
)

// SchemaStore holds the attached table identity, its columns and the last
// declarative column mapping reported by the host.
//
// Each fetch is tagged with the table id it was issued for; a result whose
// table id is no longer current is discarded. Listeners run after every lock
// is released, so they may call back into the store.
type SchemaStore struct {
	// commit serializes identity changes against fetch results so a stale
	// result can never land after the identity moved on.
	commit sync.Mutex
	mu     sync.Mutex

	tableID string
	closed  bool
	mapping ColumnMapping
	columns *observe.Subject[[]TableColumn]

	source SchemaSource
	ctx    context.Context
	wg     sync.WaitGroup
	log    logrus.FieldLogger
	events *eventSink
}

func newSchemaStore(ctx context.Context, b Binding, log logrus.FieldLogger, events *eventSink) *SchemaStore {
	return &SchemaStore{
		columns: observe.New(observe.WithReplay[[]TableColumn](func(columns []TableColumn) bool {
			return len(columns) > 0
		})),
		source: b.schema,
		ctx:    ctx,
		log:    log.WithField("component", "schema"),
		events: events,
	}
}

// OnTableIdentityResolved records tableID as current. Changing the id drops
// the previous columns. A non-empty id starts an asynchronous schema fetch
// unless the store is closed.
func (s *SchemaStore) OnTableIdentityResolved(tableID string) {
	tableID = strings.TrimSpace(tableID)

	s.commit.Lock()
	s.mu.Lock()
	changed := s.tableID != tableID
	s.tableID = tableID
	s.mu.Unlock()
	if changed {
		s.columns.Reset()
	}
	fetch := tableID != "" && s.source != nil && !s.closed
	if fetch {
		s.wg.Add(1)
	}
	s.commit.Unlock()

	if !fetch {
		return
	}
	go func() {
		defer s.wg.Done()
		_ = s.FetchSchema(s.ctx, tableID)
	}()
}

// FetchSchema blocks until the host answers the schema request for tableID.
// On success the normalized columns replace the current ones, unless tableID
// is no longer current. On failure the error is logged, current columns are
// kept and no listener is notified.
func (s *SchemaStore) FetchSchema(ctx context.Context, tableID string) error {
	if s.source == nil {
		s.log.WithField("table_id", tableID).Debug("schema fetch skipped: host has no schema capability")
		return nil
	}
	data, err := s.source.FetchTable(ctx, tableID)
	if err != nil {
		s.log.WithError(err).WithField("table_id", tableID).Error("schema fetch failed")
		s.events.emit(activity.BuildSchemaFailedEvent(activity.EventInput{TableID: tableID, Err: err}))
		return fmt.Errorf("widget: fetch schema %q: %w", tableID, err)
	}
	columns := normalizeColumns(data.Columns)

	s.commit.Lock()
	if current := s.TableID(); current != tableID {
		s.commit.Unlock()
		s.log.WithFields(logrus.Fields{"table_id": tableID, "current": current}).Debug("discarding stale schema")
		return nil
	}
	s.columns.Enqueue(columns)
	s.commit.Unlock()

	s.columns.Drain()
	s.events.emit(activity.BuildSchemaLoadedEvent(activity.EventInput{
		TableID: tableID,
		Columns: columnIDs(columns),
	}))
	return nil
}

// SubscribeColumns registers listener. It is invoked once immediately when
// columns are already loaded.
func (s *SchemaStore) SubscribeColumns(listener func([]TableColumn)) {
	if listener == nil {
		return
	}
	s.columns.Subscribe(func(columns []TableColumn) {
		listener(append([]TableColumn(nil), columns...))
	})
}

// Columns returns a copy of the current columns.
func (s *SchemaStore) Columns() []TableColumn {
	columns, _ := s.columns.Current()
	return append([]TableColumn(nil), columns...)
}

// TableID returns the current table id, or "" when none is resolved.
func (s *SchemaStore) TableID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableID
}

// SetMapping records the declarative mapping last sent by the host.
func (s *SchemaStore) SetMapping(mapping ColumnMapping) {
	s.mu.Lock()
	s.mapping = mapping.Clone()
	s.mu.Unlock()
}

// Mapping returns a copy of the last declarative mapping, or nil.
func (s *SchemaStore) Mapping() ColumnMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping.Clone()
}

// Wait blocks until every fetch started by OnTableIdentityResolved returns.
func (s *SchemaStore) Wait() {
	s.wg.Wait()
}

// close stops new fetches from starting and waits for the running ones.
func (s *SchemaStore) close() {
	s.commit.Lock()
	s.closed = true
	s.commit.Unlock()
	s.wg.Wait()
}

// normalizeColumns turns host column descriptors into TableColumn values.
// The id is read from "id" or "colId"; label and type from the top level or a
// nested "fields" object. Descriptors without an id are dropped, duplicate ids
// keep their first occurrence, a missing label falls back to the id and a
// missing type to "Any".
func normalizeColumns(descriptors []map[string]any) []TableColumn {
	columns := make([]TableColumn, 0, len(descriptors))
	seen := make(map[string]struct{}, len(descriptors))
	for _, desc := range descriptors {
		id := firstString(desc, "id", "colId")
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		nested, _ := desc["fields"].(map[string]any)
		label := firstString(desc, "label")
		if label == "" {
			label = firstString(nested, "label")
		}
		if label == "" {
			label = id
		}
		typ := firstString(desc, "type")
		if typ == "" {
			typ = firstString(nested, "type")
		}
		if typ == "" {
			typ = "Any"
		}
		columns = append(columns, TableColumn{ID: id, Label: label, Type: typ})
	}
	return columns
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		case fmt.Stringer:
			s = v.String()
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func columnIDs(columns []TableColumn) []string {
	ids := make([]string, 0, len(columns))
	for _, column := range columns {
		ids = append(ids, column.ID)
	}
	return ids
}
