// Package main is the entry point for the homestock suggestion server.
//
// Usage:
//
//	homestock serve              run the HTTP API
//	homestock init --from FILE   seed the cache from an inventory export
//	homestock cleanup            drop low-frequency entries
//	homestock stats              print cache statistics
//	homestock suggest            query suggestions
//	homestock record             record one field usage
//	homestock status | stop      inspect or stop a running server
//	homestock service install    install as a per-user OS service
//	homestock version            print version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/homestock/homestock/internal/api"
	"github.com/homestock/homestock/internal/config"
	"github.com/homestock/homestock/internal/deploy"
	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/observability"
	"github.com/homestock/homestock/internal/storage"
	"github.com/homestock/homestock/internal/suggest"
)

const (
	version = "0.1.0"
	appName = "homestock"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "serve":
		err = runServe(rest, stderr)
	case "init":
		err = runInit(rest, stdout, stderr)
	case "cleanup":
		err = runCleanup(rest, stdout, stderr)
	case "stats":
		err = runStats(rest, stdout, stderr)
	case "suggest":
		err = runSuggest(rest, stdout, stderr)
	case "record":
		err = runRecord(rest, stdout, stderr)
	case "status":
		err = runStatus(rest, stdout, stderr)
	case "stop":
		err = runStop(rest, stdout, stderr)
	case "service":
		err = runService(rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "%s v%s\n", appName, version)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", cmd)
		printUsage(stderr)
		return 1
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s %s: %v\n", appName, cmd, err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s v%s - household inventory autocomplete suggestions

Usage:
  %s <command> [flags]

Commands:
  serve      Run the HTTP API (suggestions, recording, maintenance)
  init       Seed the cache from an inventory export (--from export.json)
  cleanup    Remove entries used fewer than --min-frequency times
  stats      Print cache statistics
  suggest    Print suggestions for a field (--field, --query)
  record     Record one usage of a value (--field, --value)
  status     Check server health (requires a running server)
  stop       Stop a running server
  service    Install or uninstall the OS service (install|uninstall)
  version    Print version

Every command accepts --config FILE (.yaml, .yml or .toml).

Environment variables:
  HOMESTOCK_CONFIG          Config file (same as --config)
  HOMESTOCK_DATA            Data directory (default: ~/.homestock)
  HOMESTOCK_API_ADDR        API listen address (default: 127.0.0.1:9090)
  HOMESTOCK_DB              SQLite database path (default: <data>/homestock.db)
  HOMESTOCK_LOG_LEVEL       debug|info|warn|error
  HOMESTOCK_LOG_FORMAT      json|text
  HOMESTOCK_MAX_CACHE_SIZE  Entries kept per household and field

`, appName, version, appName)
}

// commandFlags returns a flag set with the shared --config flag.
func commandFlags(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("HOMESTOCK_CONFIG"), "config file (.yaml/.yml/.toml)")
	return fs, cfgPath
}

func householdFlag(fs *flag.FlagSet) *string {
	return fs.String("household", "", "household ID (default: server.default_household)")
}

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg       config.Config
	log       *observability.Logger
	telemetry *observability.Telemetry
	store     storage.Backend
	svc       *suggest.Service
	maint     *deploy.MaintenanceLock
}

// bootstrap loads config and wires logging, telemetry, storage and the
// suggestion service. Telemetry exporters are only started for serve.
func bootstrap(cfgPath string, stderr io.Writer, serve bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	logger := observability.New(appName, stderr, cfg.Log.Format, cfg.Log.Level)

	telCfg := observability.TelemetryConfig{ServiceName: appName, Version: version}
	if serve {
		telCfg.MetricsEnabled = cfg.Telemetry.MetricsEnabled
		telCfg.MetricsExporter = cfg.Telemetry.MetricsExporter
		telCfg.TracingEnabled = cfg.Telemetry.TracingEnabled
		telCfg.TracingExporter = cfg.Telemetry.TracingExporter
		telCfg.SamplePct = cfg.Telemetry.SamplePct
	}
	tel, err := observability.NewTelemetry(context.Background(), telCfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	metrics, err := observability.NewMetrics(tel.Meter())
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	store, err := storage.Open(cfg.Storage.Driver, cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	svc := suggest.New(store,
		suggest.WithMaxCacheSize(cfg.Suggest.MaxCacheSize),
		suggest.WithMinFrequencyThreshold(cfg.Suggest.MinFrequencyThreshold),
		suggest.WithDefaultLimit(cfg.Suggest.DefaultLimit),
		suggest.WithTopValues(cfg.Suggest.TopValues),
		suggest.WithLogger(logger),
		suggest.WithMetrics(metrics),
		suggest.WithTracer(tel.Tracer()),
	)
	logger.Debug("bootstrap complete",
		"data_dir", cfg.DataDir, "driver", cfg.Storage.Driver, "db", cfg.DBPath(),
		"max_cache_size", svc.MaxCacheSize())

	return &app{
		cfg:       cfg,
		log:       logger,
		telemetry: tel,
		store:     store,
		svc:       svc,
		maint:     deploy.NewMaintenanceLock(cfg.DataDir, 0),
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.log.Warn("telemetry shutdown", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", "error", err)
	}
}

func (a *app) household(flagValue string) suggest.TenantID {
	if h := strings.TrimSpace(flagValue); h != "" {
		return suggest.TenantID(h)
	}
	return suggest.TenantID(a.cfg.Server.DefaultHousehold)
}

func parseOptionalField(raw string) (suggest.FieldType, error) {
	if strings.TrimSpace(raw) == "" {
		return suggest.AllFields, nil
	}
	return suggest.ParseFieldType(raw)
}

// runServe starts the HTTP API and blocks until SIGINT/SIGTERM.
func runServe(args []string, stderr io.Writer) error {
	fs, cfgPath := commandFlags("serve", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := bootstrap(*cfgPath, stderr, true)
	if err != nil {
		return err
	}
	defer a.close()

	pf := deploy.NewPIDFile(a.cfg.DataDir)
	if err := pf.Guard(); err != nil {
		return err
	}
	defer pf.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []api.Option{
		api.WithLogger(a.log),
		api.WithPinger(a.store),
		api.WithMaintenanceLock(a.maint),
	}
	if h := a.telemetry.MetricsHandler(); h != nil {
		opts = append(opts, api.WithMetricsHandler(h))
	}
	srv := api.NewServer(api.Config{
		Addr:             a.cfg.Server.Addr,
		DefaultHousehold: a.cfg.Server.DefaultHousehold,
		ReadTimeout:      a.cfg.Server.ReadTimeout,
		WriteTimeout:     a.cfg.Server.WriteTimeout,
		ShutdownTimeout:  a.cfg.Server.ShutdownTimeout,
		MaxBodyBytes:     a.cfg.Server.MaxBodyBytes,
		Version:          version,
	}, a.svc, opts...)

	a.log.Info("server starting", "version", version, "addr", a.cfg.Server.Addr, "pid", os.Getpid())
	if err := srv.Start(ctx); err != nil {
		return err
	}
	a.log.Info("server stopped")
	return nil
}

func runInit(args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := commandFlags("init", stderr)
	from := fs.String("from", "", "inventory export JSON file")
	household := householdFlag(fs)
	field := fs.String("field", "", "only seed this field type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" {
		return errors.New("--from is required")
	}

	var fields []suggest.FieldType
	if *field != "" {
		ft, err := suggest.ParseFieldType(*field)
		if err != nil {
			return err
		}
		fields = append(fields, ft)
	}

	src, err := inventory.LoadExport(*from)
	if err != nil {
		return err
	}

	a, err := bootstrap(*cfgPath, stderr, false)
	if err != nil {
		return err
	}
	defer a.close()

	tenant := a.household(*household)
	var counts map[suggest.FieldType]int
	err = a.maint.Run(context.Background(), func(ctx context.Context) error {
		var err error
		counts, err = a.svc.InitializeFromSource(ctx, tenant, src, fields...)
		return err
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(counts))
	for ft := range counts {
		keys = append(keys, string(ft))
	}
	sort.Strings(keys)
	fmt.Fprintf(stdout, "initialized household %s from %d items\n", tenant, src.Len())
	for _, k := range keys {
		fmt.Fprintf(stdout, "  %-14s %d\n", k, counts[suggest.FieldType(k)])
	}
	return nil
}

func runCleanup(args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := commandFlags("cleanup", stderr)
	household := householdFlag(fs)
	field := fs.String("field", "", "field type to clean (default: all)")
	minFreq := fs.Int("min-frequency", 0, "remove entries used fewer times (default: suggest.min_frequency_threshold)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ft, err := parseOptionalField(*field)
	if err != nil {
		return err
	}

	a, err := bootstrap(*cfgPath, stderr, false)
	if err != nil {
		return err
	}
	defer a.close()

	tenant := a.household(*household)
	var removed int
	err = a.maint.Run(context.Background(), func(ctx context.Context) error {
		var err error
		removed, err = a.svc.CleanupLowFrequency(ctx, tenant, ft, *minFreq)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "removed %d entries\n", removed)
	return nil
}

func runStats(args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := commandFlags("stats", stderr)
	household := householdFlag(fs)
	field := fs.String("field", "", "field type (default: all)")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ft, err := parseOptionalField(*field)
	if err != nil {
		return err
	}

	a, err := bootstrap(*cfgPath, stderr, false)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.svc.GetStatistics(context.Background(), a.household(*household), ft)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(stdout, "entries: %d  total frequency: %d\n\n", stats.TotalEntries, stats.TotalFrequency)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tENTRIES\tFREQUENCY")
	for _, ft := range suggest.FieldTypes {
		if fst, ok := stats.ByFieldType[ft]; ok {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", ft, fst.Count, fst.TotalFrequency)
		}
	}
	tw.Flush()

	if len(stats.TopValues) > 0 {
		fmt.Fprintln(stdout)
		tw = tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TOP VALUE\tFIELD\tFREQUENCY\tLAST USED")
		for _, v := range stats.TopValues {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", v.Value, v.FieldType, v.Frequency, v.LastUsed.Local().Format(time.DateTime))
		}
		tw.Flush()
	}
	return nil
}

func runSuggest(args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := commandFlags("suggest", stderr)
	household := householdFlag(fs)
	field := fs.String("field", "", "field type: category|location_path|unit")
	query := fs.String("query", "", "case-insensitive substring filter")
	limit := fs.Int("limit", 0, "maximum results (default: suggest.default_limit)")
	minFreq := fs.Int("min-frequency", 1, "hide entries used fewer times")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ft, err := suggest.ParseFieldType(*field)
	if err != nil {
		return err
	}

	a, err := bootstrap(*cfgPath, stderr, false)
	if err != nil {
		return err
	}
	defer a.close()

	out, err := a.svc.GetSuggestions(context.Background(), a.household(*household), ft, *query, *limit,
		suggest.WithMinFrequency(*minFreq))
	if err != nil {
		return err
	}
	for _, s := range out {
		fmt.Fprintf(stdout, "%s\t%d\n", s.Value, s.Frequency)
	}
	return nil
}

func runRecord(args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := commandFlags("record", stderr)
	household := householdFlag(fs)
	field := fs.String("field", "", "field type: category|location_path|unit")
	value := fs.String("value", "", "value that was used")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ft, err := suggest.ParseFieldType(*field)
	if err != nil {
		return err
	}

	a, err := bootstrap(*cfgPath, stderr, false)
	if err != nil {
		return err
	}
	defer a.close()

	e, err := a.svc.RecordUsage(context.Background(), a.household(*household), ft, *value)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %q frequency=%d\n", e.FieldType, e.Value, e.Frequency)
	return nil
}

// runStatus checks the server by hitting the health endpoint.
func runStatus(args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := commandFlags("status", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	addr := cfg.Server.Addr

	if pid, running := deploy.NewPIDFile(cfg.DataDir).IsRunning(); running {
		fmt.Fprintf(stdout, "server process running (pid=%d)\n", pid)
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		return fmt.Errorf("server is NOT running at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server at %s returned status %d", addr, resp.StatusCode)
	}
	fmt.Fprintf(stdout, "server is running at %s\n", addr)
	return nil
}

func runStop(args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := commandFlags("stop", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := deploy.StopServer(cfg.DataDir); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "stop signal sent")
	return nil
}

func runService(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: homestock service install|uninstall [--config FILE]")
	}
	action := args[0]
	fs, cfgPath := commandFlags("service "+action, stderr)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate binary: %w", err)
	}
	svcCfg := deploy.ServiceConfig{
		BinaryPath: bin,
		DataDir:    cfg.DataDir,
		APIAddr:    cfg.Server.Addr,
	}
	if *cfgPath != "" {
		if abs, err := filepath.Abs(*cfgPath); err == nil {
			svcCfg.ConfigPath = abs
		}
	}

	var res *deploy.InstallResult
	switch action {
	case "install":
		res, err = deploy.Install(svcCfg)
	case "uninstall":
		res, err = deploy.Uninstall(svcCfg)
	default:
		return fmt.Errorf("unknown service action %q (want install|uninstall)", action)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, res.Instructions)
	return nil
}
