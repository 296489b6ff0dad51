// Command formwidget runs the widget core against a SQLite development host.
//
//	formwidget -db file:dev.db -table Tasks -set "Title=Write docs" -dump
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	widget "github.com/goliatone/go-formwidget"
	"github.com/goliatone/go-formwidget/internal/config"
	"github.com/goliatone/go-formwidget/internal/logger"
	"github.com/goliatone/go-formwidget/pkg/activity"
	"github.com/goliatone/go-formwidget/pkg/activity/promsink"
	"github.com/goliatone/go-formwidget/pkg/devhost"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "formwidget:", err)
		os.Exit(1)
	}
}

// assignments collects repeated -set Label=Value flags.
type assignments widget.RowPayload

func (a assignments) String() string {
	return fmt.Sprint(map[string]string(a))
}

func (a assignments) Set(value string) error {
	label, v, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(label) == "" {
		return fmt.Errorf("expected Label=Value, got %q", value)
	}
	a[strings.TrimSpace(label)] = v
	return nil
}

type snapshot struct {
	Mode    widget.MappingMode
	TableID string
	Columns []widget.TableColumn
	Mapping widget.ColumnMapping
	Options *widget.WidgetOptions
	Rows    []widget.Row
	Events  map[string]float64
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("formwidget", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	dsn := fs.String("db", "", "SQLite DSN of the development host")
	table := fs.String("table", "", "table to attach the widget to")
	mappingPath := fs.String("mapping", "", "YAML file with a declarative column mapping")
	dump := fs.Bool("dump", false, "dump the widget state after running")
	payload := assignments{}
	fs.Var(payload, "set", "Label=Value pair to submit as a new row (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *dsn != "" {
		cfg.DevHost.DSN = *dsn
	}
	if *table != "" {
		cfg.DevHost.Table = *table
	}
	if *mappingPath != "" {
		cfg.DevHost.Mapping = *mappingPath
	}
	log := logger.NewLogger(cfg.Logging, stderr)

	widgetOpts, err := cfg.WidgetOptions()
	if err != nil {
		return err
	}
	widgetOpts = append(widgetOpts, widget.WithLogger(log))

	hostOpts := []devhost.Option{devhost.WithLogger(log), devhost.WithWidgetKey(cfg.DevHost.WidgetKey)}
	if cfg.DevHost.Mapping != "" {
		mf, err := devhost.LoadMappingFile(cfg.DevHost.Mapping)
		if err != nil {
			return err
		}
		hostOpts = append(hostOpts, devhost.WithMapping(mf.ColumnMapping()))
		if slots := mf.Slots(); len(slots) > 0 {
			widgetOpts = append(widgetOpts, widget.WithColumnSlots(slots))
		}
	}

	registry := prometheus.NewRegistry()
	if cfg.Activity.Enabled {
		counter, err := promsink.New(registry, cfg.Activity.Namespace)
		if err != nil {
			return fmt.Errorf("activity metrics: %w", err)
		}
		hooks := activity.Hooks{counter, activity.HookFunc(func(_ context.Context, event activity.Event) error {
			log.WithField("verb", event.Verb).WithField("object_id", event.ObjectID).Info("activity")
			return nil
		})}
		widgetOpts = append(widgetOpts, widget.WithActivityHooks(hooks))
	}

	host, err := devhost.Open(ctx, cfg.DevHost.DSN, hostOpts...)
	if err != nil {
		return err
	}
	defer host.Close()

	w := widget.New(host, widgetOpts...)
	defer w.Close()

	if err := w.Initialize(ctx); err != nil {
		return err
	}
	if err := host.PublishOptions(ctx); err != nil {
		return err
	}
	if cfg.DevHost.Table != "" {
		if err := host.Attach(ctx, cfg.DevHost.Table); err != nil {
			return err
		}
		w.Schema().Wait()
	}

	if len(payload) > 0 {
		if err := w.Submit(ctx, widget.RowPayload(payload), ""); err != nil {
			var rowErr *widget.RowCreationError
			if errors.As(err, &rowErr) {
				return fmt.Errorf("row rejected by %s: %w", rowErr.TableID, rowErr.Err)
			}
			return err
		}
		w.Schema().Wait()
	}

	if *dump {
		state := snapshot{
			Mode:    w.Mode(),
			TableID: w.Schema().TableID(),
			Columns: w.Schema().Columns(),
			Mapping: w.Schema().Mapping(),
		}
		if options, ok := w.Options().Current(); ok {
			state.Options = &options
		}
		w.Rows(func(rows []widget.Row) { state.Rows = rows })
		state.Events, err = eventCounts(registry)
		if err != nil {
			return err
		}
		cs := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true, DisableCapacities: true}
		cs.Fdump(stdout, state)
	}
	return nil
}

func eventCounts(gatherer prometheus.Gatherer) (map[string]float64, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	counts := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "verb" {
					counts[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return counts, nil
}
