package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeEventTrimsClonesAndDefaults(t *testing.T) {
	meta := map[string]any{"k": "v"}
	evt := Event{
		Verb:       " row.created ",
		ActorID:    " actor ",
		WidgetID:   " w1 ",
		TableID:    " Table1 ",
		ObjectType: " row ",
		ObjectID:   " 42 ",
		Channel:    " widget ",
		Metadata:   meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != "row.created" || got.ObjectType != "row" || got.ObjectID != "42" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.WidgetID != "w1" || got.TableID != "Table1" || got.Channel != "widget" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata["k"] = "changed"
	if evt.Metadata["k"] != "v" {
		t.Fatalf("expected original metadata untouched: %+v", evt.Metadata)
	}
}

func TestNormalizeEventDerivesObject(t *testing.T) {
	cases := []struct {
		name       string
		event      Event
		objectType string
		objectID   string
	}{
		{name: "table id", event: Event{Verb: "row.created", TableID: "Tasks"}, objectType: "row", objectID: "Tasks"},
		{name: "widget id", event: Event{Verb: "widget.ready", WidgetID: " w1 "}, objectType: "widget", objectID: "w1"},
		{name: "object type", event: Event{Verb: "options.saved"}, objectType: "options", objectID: "options"},
		{name: "explicit", event: Event{Verb: "row.created", ObjectType: "record", ObjectID: "Tasks/4", TableID: "Tasks"}, objectType: "record", objectID: "Tasks/4"},
		{name: "verb without dot", event: Event{Verb: "ping"}, objectType: "ping", objectID: "ping"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeEvent(tc.event)
			if got.ObjectType != tc.objectType || got.ObjectID != tc.objectID {
				t.Fatalf("expected %s/%s, got %s/%s", tc.objectType, tc.objectID, got.ObjectType, got.ObjectID)
			}
		})
	}
}

func TestHooksNotifyDropsEventsWithoutVerb(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	if err := hooks.Notify(context.Background(), Event{TableID: "Tasks"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	capture := &CaptureHook{}
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, event Event) error {
			if ctx != nil {
				ctxSeen = true
			}
			return nil
		}),
		capture,
		HookFunc(func(_ context.Context, _ Event) error { return boom1 }),
		nil,
		HookFunc(func(_ context.Context, _ Event) error { return boom2 }),
	}

	err := hooks.Notify(nil, Event{Verb: VerbRowCreated, ObjectType: "row", ObjectID: "Table1"})
	if err == nil || !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected event to be captured once, got %d", len(capture.Events))
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), BuildReadyEvent(EventInput{})); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true, WidgetID: "w-7"})
	if !enabled.Enabled() {
		t.Fatalf("expected emitter to be enabled")
	}
	if err := enabled.Emit(context.Background(), BuildReadyEvent(EventInput{})); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected one event captured, got %d", len(capture.Events))
	}
	if capture.Events[0].Channel != "widget" {
		t.Fatalf("expected default channel applied, got %q", capture.Events[0].Channel)
	}
	if capture.Events[0].WidgetID != "w-7" {
		t.Fatalf("expected default widget id applied, got %q", capture.Events[0].WidgetID)
	}
}

func TestEmitterPreservesExplicitChannel(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "default"})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := emitter.Emit(context.Background(), BuildRowCreatedEvent(EventInput{
		TableID:    "Table1",
		Channel:    "custom",
		OccurredAt: at,
	}))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if capture.Events[0].Channel != "custom" {
		t.Fatalf("expected explicit channel preserved, got %q", capture.Events[0].Channel)
	}
	if !capture.Events[0].OccurredAt.Equal(at) {
		t.Fatalf("expected occurred_at preserved, got %v", capture.Events[0].OccurredAt)
	}
}

func TestNilEmitterIsDisabled(t *testing.T) {
	var emitter *Emitter
	if emitter.Enabled() {
		t.Fatalf("expected nil emitter to be disabled")
	}
	if err := emitter.Emit(context.Background(), BuildReadyEvent(EventInput{})); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
