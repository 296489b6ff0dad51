package widget

import (
	"context"
	"sync"
)

type createCall struct {
	tableID string
	records []Record
}

// fakeHost implements only the required Host surface.
type fakeHost struct {
	mu        sync.Mutex
	ready     []ReadyRequest
	readyErr  error
	recordsFn func(RecordsEvent)
	creates   []createCall
	createErr error
	nextID    int64
}

func (h *fakeHost) DeclareReady(_ context.Context, req ReadyRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = append(h.ready, req)
	return h.readyErr
}

func (h *fakeHost) OnRecords(fn func(RecordsEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recordsFn = fn
}

func (h *fakeHost) CreateRecords(_ context.Context, tableID string, records []Record) ([]int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.creates = append(h.creates, createCall{tableID: tableID, records: records})
	if h.createErr != nil {
		return nil, h.createErr
	}
	ids := make([]int64, 0, len(records))
	for range records {
		h.nextID++
		ids = append(ids, h.nextID)
	}
	return ids, nil
}

func (h *fakeHost) sendRecords(event RecordsEvent) {
	h.mu.Lock()
	fn := h.recordsFn
	h.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}

func (h *fakeHost) createCalls() []createCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]createCall(nil), h.creates...)
}

// fullHost implements every optional capability.
type fullHost struct {
	*fakeHost

	optionsFn func(map[string]any)
	editFn    func()
	saved     []map[string]any
	saveErr   error
	table     TableIdentity
	hasTable  bool
	fetch     func(ctx context.Context, tableID string) (TableData, error)
	mapper    bool
}

func newFullHost() *fullHost {
	return &fullHost{fakeHost: &fakeHost{}}
}

func (h *fullHost) OnOptions(fn func(map[string]any)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.optionsFn = fn
}

func (h *fullHost) SetOptions(_ context.Context, options map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, options)
	return h.saveErr
}

func (h *fullHost) OnEditOptions(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.editFn = fn
}

func (h *fullHost) GetTable() (TableIdentity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table, h.hasTable
}

func (h *fullHost) FetchTable(ctx context.Context, tableID string) (TableData, error) {
	if h.fetch == nil {
		return TableData{}, nil
	}
	return h.fetch(ctx, tableID)
}

func (h *fullHost) SupportsColumnMapping() bool {
	return h.mapper
}

func (h *fullHost) pushOptions(raw map[string]any) {
	h.mu.Lock()
	fn := h.optionsFn
	h.mu.Unlock()
	if fn != nil {
		fn(raw)
	}
}

func (h *fullHost) requestEdit() {
	h.mu.Lock()
	fn := h.editFn
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *fullHost) savedOptions() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]any(nil), h.saved...)
}
