package activity

import "time"

// Verbs emitted by the widget core.
const (
	VerbReady          = "widget.ready"
	VerbOptionsUpdated = "options.updated"
	VerbOptionsSaved   = "options.saved"
	VerbSchemaLoaded   = "schema.loaded"
	VerbSchemaFailed   = "schema.failed"
	VerbRowCreated     = "row.created"
	VerbRowFailed      = "row.failed"
)

// EventInput describes the common fields for widget lifecycle events.
type EventInput struct {
	ActorID    string
	WidgetID   string
	TableID    string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	Columns    []string
	Err        error
	OccurredAt time.Time
}

// BuildReadyEvent constructs the event emitted once the host accepted readiness.
func BuildReadyEvent(input EventInput) Event {
	return buildEvent(VerbReady, input)
}

// BuildOptionsUpdatedEvent constructs the event for a host options push.
func BuildOptionsUpdatedEvent(input EventInput) Event {
	return buildEvent(VerbOptionsUpdated, input)
}

// BuildOptionsSavedEvent constructs the event for a successful options save.
func BuildOptionsSavedEvent(input EventInput) Event {
	return buildEvent(VerbOptionsSaved, input)
}

// BuildSchemaLoadedEvent constructs the event for a schema refresh.
func BuildSchemaLoadedEvent(input EventInput) Event {
	return buildEvent(VerbSchemaLoaded, input)
}

// BuildSchemaFailedEvent constructs the event for a rejected schema fetch.
func BuildSchemaFailedEvent(input EventInput) Event {
	return buildEvent(VerbSchemaFailed, input)
}

// BuildRowCreatedEvent constructs the event for an accepted row creation.
func BuildRowCreatedEvent(input EventInput) Event {
	return buildEvent(VerbRowCreated, input)
}

// BuildRowFailedEvent constructs the event for a rejected row creation.
func BuildRowFailedEvent(input EventInput) Event {
	return buildEvent(VerbRowFailed, input)
}

func buildEvent(verb string, input EventInput) Event {
	metadata := cloneMap(input.Metadata)
	if len(input.Columns) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["columns"] = append([]string{}, input.Columns...)
	}
	if input.Err != nil {
		metadata = ensureMetadata(metadata)
		metadata["error"] = input.Err.Error()
	}
	event := NormalizeEvent(Event{
		Verb:       verb,
		ActorID:    input.ActorID,
		WidgetID:   input.WidgetID,
		TableID:    input.TableID,
		ObjectID:   input.ObjectID,
		Channel:    input.Channel,
		OccurredAt: input.OccurredAt,
	})
	event.Metadata = metadata
	return event
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
