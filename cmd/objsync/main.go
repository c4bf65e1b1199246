// objsync: keep a destination object-store prefix converged with a source prefix.
// Commands: sync, plan, history.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/objsync/objsync/internal/config"
	"github.com/objsync/objsync/internal/journal"
	"github.com/objsync/objsync/internal/store"
	"github.com/objsync/objsync/internal/syncer"
)

func setupLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

type runFlags struct {
	source      string
	destination string
	concurrency int
	retries     int
	stream      bool
	noJournal   bool
	verbose     bool
	limit       int
}

func parseFlags(args []string) (runFlags, error) {
	f := runFlags{limit: 20}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--source", "-s":
			if i+1 >= len(args) {
				return f, fmt.Errorf("--source requires an s3:// URI")
			}
			f.source = args[i+1]
			i++
		case "--dest", "-d":
			if i+1 >= len(args) {
				return f, fmt.Errorf("--dest requires an s3:// URI")
			}
			f.destination = args[i+1]
			i++
		case "--concurrency", "-c":
			if i+1 >= len(args) {
				return f, fmt.Errorf("--concurrency requires a number")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 1 {
				return f, fmt.Errorf("invalid concurrency %q", args[i+1])
			}
			f.concurrency = n
			i++
		case "--retries", "-r":
			if i+1 >= len(args) {
				return f, fmt.Errorf("--retries requires a number")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 1 {
				return f, fmt.Errorf("invalid retries %q", args[i+1])
			}
			f.retries = n
			i++
		case "--limit", "-n":
			if i+1 >= len(args) {
				return f, fmt.Errorf("--limit requires a number")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 1 {
				return f, fmt.Errorf("invalid limit %q", args[i+1])
			}
			f.limit = n
			i++
		case "--stream":
			f.stream = true
		case "--no-journal":
			f.noJournal = true
		case "--verbose", "-v":
			f.verbose = true
		default:
			return f, fmt.Errorf("unknown flag %q", args[i])
		}
	}
	return f, nil
}

// buildSyncer assembles store handles and a Syncer from file config plus
// flags. Locations served by the same endpoint and credentials share one
// handle, which enables server-side copies between them.
func buildSyncer(ctx context.Context, f runFlags) (*syncer.Syncer, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if f.source != "" {
		cfg.Source = config.LocationConfig{URI: f.source}
		if err := cfg.Source.Normalize(); err != nil {
			return nil, nil, fmt.Errorf("source: %w", err)
		}
	}
	if f.destination != "" {
		cfg.Destination = config.LocationConfig{URI: f.destination}
		if err := cfg.Destination.Normalize(); err != nil {
			return nil, nil, fmt.Errorf("destination: %w", err)
		}
	}
	if cfg.Source.Bucket == "" || cfg.Destination.Bucket == "" {
		return nil, nil, fmt.Errorf("source and destination are required (flags or config file)")
	}
	if f.concurrency > 0 {
		cfg.MaxConcurrency = f.concurrency
	}
	if f.retries > 0 {
		cfg.MaxRetries = f.retries
	}
	if f.stream {
		cfg.ForceStream = true
	}

	srcStore, err := store.NewS3Store(ctx, storeConfig(cfg.Source))
	if err != nil {
		return nil, nil, fmt.Errorf("source store: %w", err)
	}
	dstStore := store.ObjectStore(srcStore)
	if !cfg.Source.SameStore(cfg.Destination) {
		s, err := store.NewS3Store(ctx, storeConfig(cfg.Destination))
		if err != nil {
			return nil, nil, fmt.Errorf("destination store: %w", err)
		}
		dstStore = s
	}

	s, err := syncer.New(syncer.Config{
		Source:         syncer.Location{Store: srcStore, Bucket: cfg.Source.Bucket, Prefix: cfg.Source.Prefix},
		Destination:    syncer.Location{Store: dstStore, Bucket: cfg.Destination.Bucket, Prefix: cfg.Destination.Prefix},
		MaxConcurrency: cfg.MaxConcurrency,
		MaxRetries:     cfg.MaxRetries,
		ForceStream:    cfg.ForceStream,
	}, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func storeConfig(lc config.LocationConfig) store.S3Config {
	return store.S3Config{
		Region:    lc.Region,
		Endpoint:  lc.Endpoint,
		PathStyle: lc.PathStyle,
		AccessKey: lc.AccessKey,
		SecretKey: lc.SecretKey,
	}
}

func cmdSync(args []string) {
	f, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync sync: %v\n", err)
		os.Exit(1)
	}
	setupLogger(f.verbose)
	ctx := context.Background()

	s, cfg, err := buildSyncer(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync sync: %v\n", err)
		os.Exit(1)
	}

	report, err := s.Sync(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync sync: %v\n", err)
		os.Exit(1)
	}

	if !f.noJournal {
		recordRun(cfg.JournalPath, report)
	}

	printReport(report)
	if !report.Converged {
		os.Exit(2)
	}
}

// recordRun appends the report to the journal. Journal trouble is worth
// a warning, never a failed sync; both the open and the insert are
// reported the same way.
func recordRun(path string, report *syncer.Report) {
	j, err := journal.Open(path)
	if err != nil {
		slog.Warn("journal unavailable", "path", path, "error", err)
		return
	}
	defer j.Close()

	_, err = j.Record(journal.Run{
		Source:      report.Source,
		Destination: report.Destination,
		StartedAt:   time.Now().UTC().Add(-report.Duration),
		Duration:    report.Duration,
		NeedsCopy:   report.NeedsCopy,
		Conflicting: report.Conflicting,
		Unchanged:   report.Unchanged,
		Copied:      report.Copied,
		Failed:      report.Failed,
		Converged:   report.Converged,
	})
	if err != nil {
		slog.Warn("journal write failed", "path", path, "error", err)
	}
}

func cmdPlan(args []string) {
	f, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync plan: %v\n", err)
		os.Exit(1)
	}
	setupLogger(f.verbose)
	ctx := context.Background()

	s, _, err := buildSyncer(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync plan: %v\n", err)
		os.Exit(1)
	}

	diff, err := s.Compare(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync plan: %v\n", err)
		os.Exit(1)
	}

	t := newTable()
	t.AppendHeader(table.Row{"action", "key", "size", "last modified"})
	for _, obj := range diff.NeedsCopy {
		t.AppendRow(table.Row{"copy", obj.Key, obj.Size, obj.LastModified.Format(time.RFC3339)})
	}
	for _, obj := range diff.Conflicting {
		t.AppendRow(table.Row{"replace", obj.Key, obj.Size, obj.LastModified.Format(time.RFC3339)})
	}
	t.Render()
	fmt.Printf("\n%d to copy, %d to replace, %d unchanged\n",
		len(diff.NeedsCopy), len(diff.Conflicting), len(diff.Unchanged))
}

func cmdHistory(args []string) {
	f, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync history: %v\n", err)
		os.Exit(1)
	}
	setupLogger(f.verbose)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync history: %v\n", err)
		os.Exit(1)
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync history: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	runs, err := j.Recent(f.limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "objsync history: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("(no runs recorded)")
		return
	}

	t := newTable()
	t.AppendHeader(table.Row{"started", "source", "destination", "copied", "failed", "converged", "took"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Source, r.Destination, r.Copied, r.Failed, r.Converged,
			r.Duration.Round(time.Millisecond),
		})
	}
	t.Render()
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		t.SetStyle(table.StyleLight)
	} else {
		t.SetStyle(table.StyleDefault)
	}
	return t
}

func printReport(r *syncer.Report) {
	status := "converged"
	if !r.Converged {
		status = "NOT converged"
	}
	fmt.Printf("objsync: %s -> %s %s\n", r.Source, r.Destination, status)
	fmt.Printf("  needed copy: %d\n", r.NeedsCopy)
	fmt.Printf("  conflicting: %d\n", r.Conflicting)
	fmt.Printf("  unchanged:   %d\n", r.Unchanged)
	fmt.Printf("  copied:      %d\n", r.Copied)
	if r.Failed > 0 {
		fmt.Printf("  failed:      %d\n", r.Failed)
	}
	fmt.Printf("  took:        %s\n", r.Duration.Round(time.Millisecond))
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("objsync: object-store prefix synchronizer")
		fmt.Println("Usage: objsync <sync|plan|history> [flags]")
		os.Exit(0)
	}
	switch os.Args[1] {
	case "sync":
		cmdSync(os.Args[2:])
	case "plan":
		cmdPlan(os.Args[2:])
	case "history":
		cmdHistory(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "objsync: unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}
