package widget

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrHostAbsent marks operations skipped because no host was detected.
	ErrHostAbsent = errors.New("widget: host capability not detected")
	// ErrInvalidOptions wraps validation failures on Save.
	ErrInvalidOptions = errors.New("widget: invalid options")
	// ErrRowCreation matches every *RowCreationError.
	ErrRowCreation = errors.New("widget: row creation failed")
)

// RowCreationError reports a host rejection of a row creation. It unwraps to
// the host's original error.
type RowCreationError struct {
	TableID string
	Fields  map[string]any
	Err     error
}

func (e *RowCreationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return fmt.Sprintf("widget: create row in %q (fields=%v): %v", e.TableID, keys, e.Err)
}

func (e *RowCreationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrRowCreation) match any RowCreationError.
func (e *RowCreationError) Is(target error) bool {
	return target == ErrRowCreation
}
