package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/arbor.report/internal/config"
	"github.com/banshee-data/arbor.report/internal/units"
)

// options holds the flags shared by the analysis subcommands.
type options struct {
	input      string
	output     string
	configPath string
	dbPath     string

	filterRatio        float64
	topN               int
	bottomN            int
	workers            int
	plots              bool
	chart              bool
	reconstructCmd     string
	reconstructTimeout time.Duration
	units              string

	verbose bool
	quiet   bool
}

// newFlagSet binds the common flags. Defaults shown in -h come from the
// config accessors so they match what an empty config resolves to.
func newFlagSet(name string, o *options, stderr io.Writer) *flag.FlagSet {
	d := config.EmptyTuningConfig()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.input, "input", "", "Input directory or single file (required)")
	fs.StringVar(&o.output, "output", "output", "Directory for filtered leaves, reports, charts and plots")
	fs.StringVar(&o.configPath, "config", "", "Path to JSON tuning config (optional)")
	fs.StringVar(&o.dbPath, "db", "", "SQLite database recording runs and tree metrics (optional)")

	fs.Float64Var(&o.filterRatio, "filter-ratio", d.GetFilterPercentage(), "Fraction of leaf nodes used as the neighbour count, in (0,1]")
	fs.IntVar(&o.topN, "top-n", d.GetTopN(), "Highest leaves averaged for tree height")
	fs.IntVar(&o.bottomN, "bottom-n", d.GetBottomN(), "Lowest leaves averaged for crown base height")
	fs.IntVar(&o.workers, "workers", d.GetWorkers(), "Trees processed concurrently")
	fs.BoolVar(&o.plots, "plots", d.GetWritePlots(), "Write a crown PNG per tree")
	fs.BoolVar(&o.chart, "chart", d.GetWriteChart(), "Write the HTML summary chart")
	fs.StringVar(&o.reconstructCmd, "reconstruct-cmd", d.GetReconstructCommand(), "External reconstruction command run on each .xyz point cloud")
	fs.DurationVar(&o.reconstructTimeout, "reconstruct-timeout", d.GetReconstructTimeout(), "Timeout per reconstruction attempt")
	fs.StringVar(&o.units, "units", d.GetReportUnits(), fmt.Sprintf("Length units for the console table (%s)", units.GetValidUnitsString()))

	fs.BoolVar(&o.verbose, "v", false, "Verbose per-tree logging")
	fs.BoolVar(&o.quiet, "quiet", false, "Suppress log output")
	return fs
}

// resolveConfig loads -config when given and applies every flag that was
// set explicitly on top of it. Flags left at their defaults do not
// override file values.
func resolveConfig(fs *flag.FlagSet, o *options) (*config.TuningConfig, error) {
	cfg := config.EmptyTuningConfig()
	if o.configPath != "" {
		loaded, err := config.LoadTuningConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "filter-ratio":
			cfg.FilterPercentage = &o.filterRatio
		case "top-n":
			cfg.TopN = &o.topN
		case "bottom-n":
			cfg.BottomN = &o.bottomN
		case "workers":
			cfg.Workers = &o.workers
		case "plots":
			cfg.WritePlots = &o.plots
		case "chart":
			cfg.WriteChart = &o.chart
		case "reconstruct-cmd":
			cfg.ReconstructCommand = &o.reconstructCmd
		case "reconstruct-timeout":
			s := o.reconstructTimeout.String()
			cfg.ReconstructTimeout = &s
		case "units":
			cfg.ReportUnits = &o.units
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
