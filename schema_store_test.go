package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSchemaStoreDiscardsStaleFetch(t *testing.T) {
	gates := map[string]chan struct{}{
		"T1": make(chan struct{}),
		"T2": make(chan struct{}),
	}
	host := newFullHost()
	host.fetch = func(_ context.Context, tableID string) (TableData, error) {
		<-gates[tableID]
		return TableData{Columns: []map[string]any{{"id": tableID + "_col"}}}, nil
	}
	w := New(host)
	defer w.Close()
	store := w.Schema()

	var notified [][]TableColumn
	store.SubscribeColumns(func(columns []TableColumn) { notified = append(notified, columns) })

	store.OnTableIdentityResolved("T1")
	store.OnTableIdentityResolved("T2")

	close(gates["T2"])
	require.Eventually(t, func() bool {
		return len(store.Columns()) == 1
	}, time.Second, 5*time.Millisecond)

	close(gates["T1"])
	store.Wait()

	require.Equal(t, "T2", store.TableID())
	require.Equal(t, []TableColumn{{ID: "T2_col", Label: "T2_col", Type: "Any"}}, store.Columns())
	require.Len(t, notified, 1)
}

func TestSchemaStoreIdentityChangeClearsColumns(t *testing.T) {
	host := newFullHost()
	host.fetch = func(_ context.Context, tableID string) (TableData, error) {
		if tableID == "T2" {
			return TableData{}, errors.New("not yet")
		}
		return TableData{Columns: []map[string]any{{"id": "A"}}}, nil
	}
	w := New(host, WithLogger(logrus.New()))
	defer w.Close()
	store := w.Schema()

	store.OnTableIdentityResolved("T1")
	store.Wait()
	require.Len(t, store.Columns(), 1)

	store.OnTableIdentityResolved("T1")
	store.Wait()
	require.Len(t, store.Columns(), 1)

	store.OnTableIdentityResolved("T2")
	store.Wait()
	require.Empty(t, store.Columns())
}

func TestSchemaStoreFetchFailureKeepsColumns(t *testing.T) {
	boom := errors.New("access denied")
	fail := false
	host := newFullHost()
	host.fetch = func(context.Context, string) (TableData, error) {
		if fail {
			return TableData{}, boom
		}
		return TableData{Columns: []map[string]any{{"id": "A"}, {"id": "B"}}}, nil
	}
	logger, hook := newTestLogger()
	w := New(host, WithLogger(logger))
	defer w.Close()
	store := w.Schema()
	store.OnTableIdentityResolved("T1")
	store.Wait()

	calls := 0
	store.SubscribeColumns(func([]TableColumn) { calls++ })
	require.Equal(t, 1, calls)

	fail = true
	err := store.FetchSchema(context.Background(), "T1")
	require.ErrorIs(t, err, boom)
	require.Len(t, store.Columns(), 2)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, countLevel(hook, logrus.ErrorLevel))
}

func TestSchemaStoreReplaysOnlyLoadedColumns(t *testing.T) {
	store := New(nil).Schema()

	calls := 0
	store.SubscribeColumns(func([]TableColumn) { calls++ })
	store.OnTableIdentityResolved("T1")
	store.SubscribeColumns(func([]TableColumn) { calls++ })

	require.Zero(t, calls)
	require.Equal(t, "T1", store.TableID())
}

func TestSchemaStoreWithoutSchemaCapability(t *testing.T) {
	host := &fakeHost{}
	store := New(host).Schema()

	require.NoError(t, store.FetchSchema(context.Background(), "T1"))
	store.OnTableIdentityResolved(" T1 ")
	store.Wait()
	require.Equal(t, "T1", store.TableID())
	require.Empty(t, store.Columns())
}

func TestSchemaStoreMappingIsCopied(t *testing.T) {
	store := New(nil).Schema()
	require.Nil(t, store.Mapping())

	mapping := ColumnMapping{"col1": "Titre"}
	store.SetMapping(mapping)
	mapping["col1"] = "Changed"

	got := store.Mapping()
	require.Equal(t, ColumnMapping{"col1": "Titre"}, got)
	got["col2"] = "X"
	require.Len(t, store.Mapping(), 1)
}

func TestNormalizeColumns(t *testing.T) {
	cases := []struct {
		name        string
		descriptors []map[string]any
		want        []TableColumn
	}{
		{
			name:        "empty",
			descriptors: nil,
			want:        []TableColumn{},
		},
		{
			name: "trims ids and falls back label and type",
			descriptors: []map[string]any{
				{"id": "  Titre  "},
				{"id": "Debut", "label": "Start", "type": "Date"},
			},
			want: []TableColumn{
				{ID: "Titre", Label: "Titre", Type: "Any"},
				{ID: "Debut", Label: "Start", Type: "Date"},
			},
		},
		{
			name: "drops empty ids and keeps first duplicate",
			descriptors: []map[string]any{
				{"id": ""},
				{"label": "orphan"},
				{"id": "A", "label": "first"},
				{"id": "A", "label": "second"},
			},
			want: []TableColumn{{ID: "A", Label: "first", Type: "Any"}},
		},
		{
			name: "reads colId and nested fields",
			descriptors: []map[string]any{
				{"colId": "Statut", "fields": map[string]any{"label": "Status", "type": "Choice"}},
				{"id": 42},
			},
			want: []TableColumn{
				{ID: "Statut", Label: "Status", Type: "Choice"},
				{ID: "42", Label: "42", Type: "Any"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, normalizeColumns(tc.descriptors))
		})
	}
}

func TestColumnsListenerMayRebindTable(t *testing.T) {
	host := newFullHost()
	host.fetch = func(_ context.Context, tableID string) (TableData, error) {
		return TableData{Columns: []map[string]any{{"id": tableID + "_col"}}}, nil
	}
	w := New(host, WithLogger(logrus.New()))
	defer w.Close()
	store := w.Schema()

	var mu sync.Mutex
	var loaded []string
	store.SubscribeColumns(func(columns []TableColumn) {
		mu.Lock()
		loaded = append(loaded, columns[0].ID)
		mu.Unlock()
		if columns[0].ID == "T1_col" {
			store.OnTableIdentityResolved("T2")
		}
	})

	done := make(chan struct{})
	go func() {
		store.OnTableIdentityResolved("T1")
		store.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rebinding from a columns listener did not return")
	}

	require.Equal(t, "T2", store.TableID())
	require.Equal(t, []TableColumn{{ID: "T2_col", Label: "T2_col", Type: "Any"}}, store.Columns())
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"T1_col", "T2_col"}, loaded)
}

func TestSchemaStoreSkipsFetchesAfterClose(t *testing.T) {
	var mu sync.Mutex
	fetched := 0
	host := newFullHost()
	host.fetch = func(context.Context, string) (TableData, error) {
		mu.Lock()
		fetched++
		mu.Unlock()
		return TableData{Columns: []map[string]any{{"id": "A"}}}, nil
	}
	w := New(host, WithLogger(logrus.New()))
	store := w.Schema()
	require.NoError(t, w.Close())

	store.OnTableIdentityResolved("T9")
	store.Wait()

	require.Equal(t, "T9", store.TableID())
	require.Empty(t, store.Columns())
	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, fetched)
}
