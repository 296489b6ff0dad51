// Package memhost is an in-memory widget host for tests and examples.
//
// A Host keeps named tables with their columns and rows, one persisted options
// blob and the identity of the table the widget is attached to. It implements
// widget.Host and every optional capability. Listener callbacks run
// synchronously on the goroutine that triggered them, outside the host lock.
package memhost
