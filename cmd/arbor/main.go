// Command arbor measures trees from reconstructed skeletons and branch
// meshes and writes per-tree reports, a summary CSV and charts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/arbor.report/internal/config"
	"github.com/banshee-data/arbor.report/internal/fsutil"
	"github.com/banshee-data/arbor.report/internal/meshio"
	"github.com/banshee-data/arbor.report/internal/monitoring"
	"github.com/banshee-data/arbor.report/internal/pipeline"
	"github.com/banshee-data/arbor.report/internal/plotting"
	"github.com/banshee-data/arbor.report/internal/reconstruct"
	"github.com/banshee-data/arbor.report/internal/report"
	"github.com/banshee-data/arbor.report/internal/store"
	"github.com/banshee-data/arbor.report/internal/version"
)

const banner = "=========="

// modelsDir holds reconstruction output under -output.
const modelsDir = "models"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command, rest := args[0], args[1:]
	switch command {
	case "run":
		return handleAnalyse(ctx, "run", rest, stdout, stderr, false)
	case "metrics":
		return handleAnalyse(ctx, "metrics", rest, stdout, stderr, true)
	case "filter":
		return handleFilter(rest, stdout, stderr)
	case "migrate":
		return handleMigrate(rest, stdout, stderr)
	case "runs":
		return handleRuns(ctx, rest, stdout, stderr)
	case "serve":
		return handleServe(ctx, rest, stderr)
	case "version":
		fmt.Fprintf(stdout, "arbor version %s\n", version.String())
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `arbor - tree measurement from skeletons and branch meshes

Usage: arbor <command> [options]

Commands:
  run       Filter leaves, measure every tree and write reports
            (with -reconstruct-cmd the input is raw .xyz point clouds)
  metrics   Measure trees from existing *_filtered.xyz leaf files
  filter    Only extract and filter skeleton leaves
  migrate   Apply or roll back database migrations (up, down, version)
  runs      List runs recorded in the database
  serve     Serve recorded runs as JSON, the report directory and debug pages
  version   Show arbor version
  help      Show this help message

Common Flags:
  -input <path>          Directory or single file (required)
  -output <dir>          Output directory (default: output)
  -config <file>         JSON tuning config; flags override its values
  -db <file>             Record the run in a SQLite database
  -filter-ratio <f>      Leaf filter neighbour fraction (default 0.15)
  -top-n, -bottom-n <n>  Leaves averaged for height and crown base (default 5)
  -workers <n>           Trees processed concurrently
  -plots, -chart         Per-tree crown PNGs, HTML summary chart
  -units <u>             Console table units: m, cm, mm, ft
  -v, -quiet             More or no log output

Examples:
  arbor run -input data/skeletons -output reports -plots
  arbor run -input data/clouds -reconstruct-cmd "AdTree" -db arbor.db
  arbor metrics -input reports -units cm
  arbor migrate -db arbor.db version
  arbor serve -db arbor.db -output reports -listen :8080
`)
}

// setupLogging routes monitoring output to stderr with the standard log
// prefix, or mutes it.
func setupLogging(o *options, stderr io.Writer) {
	if o.quiet {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetLogger(log.New(stderr, "", log.LstdFlags).Printf)
	}
	monitoring.SetVerbose(o.verbose && !o.quiet)
}

func parseOptions(name string, args []string, stderr io.Writer) (*options, *config.TuningConfig, error) {
	o := &options{}
	fs := newFlagSet(name, o, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	setupLogging(o, stderr)
	if o.input == "" {
		return nil, nil, errors.New("-input is required")
	}
	cfg, err := resolveConfig(fs, o)
	if err != nil {
		return nil, nil, err
	}
	return o, cfg, nil
}

func handleAnalyse(ctx context.Context, name string, args []string, stdout, stderr io.Writer, filtered bool) int {
	o, cfg, err := parseOptions(name, args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	fsys := fsutil.OSFileSystem{}

	var (
		inputs []pipeline.TreeInput
		failed []*pipeline.TreeResult
	)
	switch {
	case filtered:
		inputs, err = pipeline.FindFilteredInputs(fsys, o.input)
	case cfg.GetReconstructCommand() != "":
		inputs, failed, err = reconstructInputs(ctx, fsys, cfg, o)
	default:
		inputs, err = pipeline.FindTreeInputs(fsys, o.input)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "%s Processing %d tree(s) from %s %s\n", banner, len(inputs)+len(failed), o.input, banner)
	params := pipeline.ParamsFromConfig(cfg, o.output)
	params.FS = fsys
	batch := pipeline.RunBatch(ctx, inputs, params, cfg.GetWorkers())
	batch.Trees = append(batch.Trees, failed...)
	batch.Failed += len(failed)

	if err := writeReports(fsys, batch, cfg, o, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if o.dbPath != "" {
		if err := recordRun(ctx, o.dbPath, batch, o.input, cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(stdout, "%s Done: %d succeeded, %d failed in %v %s\n",
		banner, batch.Succeeded, batch.Failed, batch.Duration.Round(time.Millisecond), banner)
	if batch.Succeeded == 0 {
		return 1
	}
	return 0
}

// reconstructInputs runs the external reconstruction tool on every .xyz
// cloud under the input and turns its outputs into tree inputs. Clouds
// that fail to reconstruct come back as failed results.
func reconstructInputs(ctx context.Context, fsys fsutil.FileSystem, cfg *config.TuningConfig, o *options) ([]pipeline.TreeInput, []*pipeline.TreeResult, error) {
	clouds := []string{o.input}
	if !strings.EqualFold(filepath.Ext(o.input), ".xyz") {
		var err error
		if clouds, err = fsys.Glob(filepath.Join(o.input, "*.xyz")); err != nil {
			return nil, nil, fmt.Errorf("failed to list point clouds: %w", err)
		}
	}
	if len(clouds) == 0 {
		return nil, nil, fmt.Errorf("no .xyz point clouds in %s", o.input)
	}

	runner := &reconstruct.Runner{
		Command: cfg.GetReconstructCommand(),
		Timeout: cfg.GetReconstructTimeout(),
		Retries: cfg.GetReconstructRetries(),
		FS:      fsys,
	}
	outDir := filepath.Join(o.output, modelsDir)

	var (
		inputs []pipeline.TreeInput
		failed []*pipeline.TreeResult
	)
	for _, c := range clouds {
		monitoring.Logf("reconstructing %s", filepath.Base(c))
		out, err := runner.Reconstruct(ctx, c, outDir)
		if err != nil {
			monitoring.Logf("tree %s failed: %v", pipeline.TreeID(c), err)
			failed = append(failed, &pipeline.TreeResult{TreeID: pipeline.TreeID(c), ProcessedAt: time.Now(), Err: err})
			continue
		}
		inputs = append(inputs, pipeline.TreeInput{
			ID:           out.TreeID,
			SkeletonPath: out.SkeletonPath,
			MeshPath:     out.BranchesPath,
		})
	}
	return inputs, failed, nil
}

// writeReports writes per-tree JSON and plots, the summary CSV and chart,
// and prints the console table.
func writeReports(fsys fsutil.FileSystem, batch *pipeline.BatchResult, cfg *config.TuningConfig, o *options, stdout io.Writer) error {
	ts := batch.StartedAt
	trees := batch.Successful()
	rows := make([]report.Row, 0, len(trees))
	for _, t := range trees {
		row := report.RowFromTree(t)
		rows = append(rows, row)
		if _, err := report.WriteTreeJSON(fsys, o.output, row, batch.RunID, ts); err != nil {
			return err
		}
		if cfg.GetWritePlots() && t.Geometry != nil && len(t.Geometry.Points) > 0 {
			if _, err := plotting.WriteCrownPlot(fsys, o.output, t.TreeID, *t.Geometry); err != nil {
				monitoring.Logf("tree %s: %v", t.TreeID, err)
			}
		}
	}

	csvPath, err := report.WriteSummaryCSVFile(fsys, o.output, rows, ts)
	if err != nil {
		return err
	}
	monitoring.Logf("summary written to %s", csvPath)
	if cfg.GetWriteChart() && len(rows) > 0 {
		chartPath, err := report.WriteSummaryChartFile(fsys, o.output, rows)
		if err != nil {
			return err
		}
		monitoring.Logf("chart written to %s", chartPath)
	}

	if len(rows) > 0 {
		report.WriteSummaryTable(stdout, rows, cfg.GetReportUnits())
	}
	return nil
}

func recordRun(ctx context.Context, path string, batch *pipeline.BatchResult, input string, cfg *config.TuningConfig) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := db.RecordBatch(ctx, batch, input, string(cfgJSON)); err != nil {
		return err
	}
	monitoring.Logf("run %s recorded in %s", batch.RunID, path)
	return nil
}

func handleFilter(args []string, stdout, stderr io.Writer) int {
	o, cfg, err := parseOptions("filter", args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	fsys := fsutil.OSFileSystem{}
	inputs, err := pipeline.FindTreeInputs(fsys, o.input)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ok := 0
	for _, in := range inputs {
		res, total, err := pipeline.FilterSkeleton(fsys, in.SkeletonPath, cfg.GetFilterPercentage())
		if err != nil {
			monitoring.Logf("tree %s: %v", in.ID, err)
			continue
		}
		path := meshio.FilteredPath(o.output, in.SkeletonPath)
		if err := meshio.WriteXYZ(fsys, path, res.Points); err != nil {
			monitoring.Logf("tree %s: %v", in.ID, err)
			continue
		}
		fmt.Fprintf(stdout, "%-20s %5d leaves, %5d kept -> %s\n", in.ID, total, len(res.Points), path)
		ok++
	}
	fmt.Fprintf(stdout, "%s Filtered %d of %d skeleton(s) %s\n", banner, ok, len(inputs), banner)
	if ok == 0 {
		return 1
	}
	return 0
}

func handleMigrate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "SQLite database path (required)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *dbPath == "" {
		fmt.Fprintln(stderr, "Error: -db is required")
		return 2
	}
	action := "up"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	// Open applies pending migrations, so "up" is done once it returns.
	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	switch action {
	case "up":
	case "down":
		if err := db.MigrateDown(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case "version":
	default:
		fmt.Fprintf(stderr, "Unknown migrate action: %s (use up, down or version)\n", action)
		return 2
	}

	v, dirty, err := db.MigrateVersion()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "schema version %d (dirty=%v)\n", v, dirty)
	return 0
}

func handleRuns(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "SQLite database path (required)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *dbPath == "" {
		fmt.Fprintln(stderr, "Error: -db is required")
		return 2
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%-38s%-21s%-10s%-8s%-8s%s\n", "Run", "Started", "Duration", "OK", "Failed", "Input")
	for _, r := range runs {
		fmt.Fprintf(stdout, "%-38s%-21s%-10s%-8d%-8d%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Duration.Round(time.Millisecond), r.Succeeded, r.Failed, r.InputPath)
	}
	return 0
}
