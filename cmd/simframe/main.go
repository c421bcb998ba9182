package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/musicinmybrain/simframe/internal/config"
	"github.com/musicinmybrain/simframe/internal/frame"
	"github.com/musicinmybrain/simframe/internal/logging"
	"github.com/musicinmybrain/simframe/internal/models"
	"github.com/musicinmybrain/simframe/internal/schemes"
	"github.com/musicinmybrain/simframe/internal/storage"
	"github.com/musicinmybrain/simframe/internal/watch"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	preset     string
	schemeName string
	h0         float64
	tEnd       float64
	tolerance  float64
	snapEvery  int
	watchField string
	plotColumn string
	exportFmt  string
	exportOut  string

	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "simframe",
		Short: "simulation stepping framework",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(os.Stderr, logging.ParseLevel(logLevel))
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".simframe", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a simulation",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use a preset configuration")
	runCmd.Flags().StringVar(&schemeName, "scheme", "", "integration scheme ("+strings.Join(schemes.Names(), ", ")+")")
	runCmd.Flags().Float64Var(&h0, "h0", 0, "initial step size")
	runCmd.Flags().Float64Var(&tEnd, "time", 0, "end of the independent variable")
	runCmd.Flags().Float64Var(&tolerance, "tolerance", 0, "relative tolerance (adaptive schemes)")
	runCmd.Flags().IntVar(&snapEvery, "snapshot-every", -1, "snapshot every N steps (0 disables)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a run's metadata and final state",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot one column of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plotColumn, "column", "", "column to plot (defaults to the first)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run's series",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&exportFmt, "format", "csv", "export format (csv, json)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (defaults to stdout)")

	watchCmd := &cobra.Command{
		Use:   "watch [model]",
		Short: "watch a simulation live",
		Args:  cobra.ExactArgs(1),
		RunE:  watchSimulation,
	}
	watchCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	watchCmd.Flags().StringVar(&preset, "preset", "", "use a preset configuration")
	watchCmd.Flags().StringVar(&schemeName, "scheme", "", "integration scheme")
	watchCmd.Flags().Float64Var(&h0, "h0", 0, "initial step size")
	watchCmd.Flags().Float64Var(&tEnd, "time", 0, "end of the independent variable")
	watchCmd.Flags().StringVar(&watchField, "field", "", "field to plot (dotted path)")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, exportCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(model string) (*config.Config, error) {
	var cfg *config.Config
	if preset != "" {
		cfg = config.GetPreset(model, preset)
		if cfg == nil {
			return nil, fmt.Errorf("no preset %q for model %q", preset, model)
		}
	} else {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	}
	cfg.Model = model
	if schemeName != "" {
		cfg.Scheme = schemeName
	}
	if h0 > 0 {
		cfg.H0 = h0
	}
	if tEnd > 0 {
		cfg.TEnd = tEnd
	}
	if tolerance > 0 {
		cfg.Tolerance = tolerance
	}
	if snapEvery >= 0 {
		cfg.SnapshotEvery = snapEvery
	}
	return cfg, cfg.Validate()
}

func buildScheme(cfg *config.Config) (schemes.Scheme, error) {
	ctrl := schemes.Controller{
		Atol:     cfg.Atol,
		Rtol:     cfg.Tolerance,
		Safety:   cfg.Safety,
		MaxScale: cfg.GrowthCap,
	}
	return schemes.New(cfg.Scheme, ctrl, cfg.MaxIterations, cfg.Damping)
}

type progressLogger struct {
	log   *slog.Logger
	every int
}

func (p *progressLogger) OnStep(x, h float64, retries int) {
	if retries > 0 {
		p.log.Debug("step accepted after retries", "x", x, "h", h, "retries", retries)
	}
}

func (p *progressLogger) OnSnapshot(index int, x float64) {
	p.log.Debug("snapshot written", "index", index, "x", x)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	scheme, err := buildScheme(cfg)
	if err != nil {
		return err
	}
	fr, err := models.Build(cfg.Model, cfg, scheme)
	if err != nil {
		return err
	}

	store := storage.New(dataDir)
	if err := store.Init(); err != nil {
		return err
	}
	run, err := store.NewRun("")
	if err != nil {
		return err
	}
	fr.SetWriter(run)
	fr.AddObserver(&progressLogger{log: logger})

	logger.Info("starting run",
		"id", run.ID(), "model", cfg.Model, "scheme", scheme.Name(),
		"h0", cfg.H0, "t_end", cfg.TEnd)

	start := time.Now()
	stop := func(fr *frame.Frame) bool { return fr.X() >= cfg.TEnd }
	if len(cfg.Snapshots) > 0 {
		stop = nil
	}
	if err := fr.Run(cmd.Context(), cfg.H0, stop); err != nil {
		return fmt.Errorf("run %s: %w", run.ID(), err)
	}
	// Snapshot-target runs already wrote the final state at the last target.
	if len(cfg.Snapshots) == 0 {
		if err := fr.WriteOutput(); err != nil {
			return err
		}
	}

	snapshots, err := store.ListSnapshots(run.ID())
	if err != nil {
		return err
	}
	meta := storage.RunMeta{
		ID:        run.ID(),
		Model:     cfg.Model,
		Scheme:    scheme.Name(),
		Timestamp: time.Now(),
		T0:        cfg.T0,
		TEnd:      fr.X(),
		H0:        cfg.H0,
		Steps:     fr.Steps(),
		Snapshots: len(snapshots),
	}
	if err := run.WriteMeta(meta); err != nil {
		return err
	}
	if err := indexPut(cmd.Context(), meta); err != nil {
		return err
	}

	logger.Info("run finished",
		"id", run.ID(), "steps", fr.Steps(), "t", fr.X(),
		"snapshots", len(snapshots), "elapsed", time.Since(start).Round(time.Millisecond))

	printValues(fr)
	return nil
}

func printValues(fr *frame.Frame) {
	values := fr.Snapshot()
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tVALUE")
	for _, p := range paths {
		v := values[p]
		if v.IsScalar() {
			fmt.Fprintf(w, "%s\t%.6g\n", p, v.Float())
		} else {
			fmt.Fprintf(w, "%s\t%v %v\n", p, v.Shape(), v.Data())
		}
	}
	w.Flush()
}

func indexPath() string {
	return filepath.Join(dataDir, "runs.db")
}

func indexPut(ctx context.Context, meta storage.RunMeta) error {
	ix := storage.NewIndex(indexPath())
	if err := ix.Init(ctx); err != nil {
		return err
	}
	defer ix.Close()
	return ix.Put(ctx, meta)
}

func listRuns(cmd *cobra.Command, args []string) error {
	ix := storage.NewIndex(indexPath())
	if err := ix.Init(cmd.Context()); err != nil {
		return err
	}
	defer ix.Close()

	runs, err := ix.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs stored")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tSCHEME\tAGE\tT-END\tSTEPS\tSNAPSHOTS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4g\t%d\t%d\n",
			r.ID, r.Model, r.Scheme, humanize.Time(r.Timestamp), r.TEnd, r.Steps, r.Snapshots)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.ReadMeta(args[0])
	if err != nil {
		return err
	}
	indices, err := store.ListSnapshots(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run %s: model=%s scheme=%s steps=%d t=[%.4g, %.4g]\n",
		meta.ID, meta.Model, meta.Scheme, meta.Steps, meta.T0, meta.TEnd)
	if len(indices) == 0 {
		return nil
	}

	last, err := store.ReadSnapshot(args[0], indices[len(indices)-1])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "FIELD\tVALUE (x=%.4g)\n", last.X)
	for _, path := range last.Paths() {
		v, err := last.Value(path)
		if err != nil {
			return err
		}
		if v.IsScalar() {
			fmt.Fprintf(w, "%s\t%.6g\n", path, v.Float())
		} else {
			fmt.Fprintf(w, "%s\t%v %v\n", path, v.Shape(), v.Data())
		}
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	series, err := store.LoadSeries(args[0])
	if err != nil {
		return err
	}
	column := plotColumn
	if column == "" {
		if len(series.Columns) == 0 {
			return fmt.Errorf("run %s has no columns", args[0])
		}
		column = series.Columns[0]
	}
	data, err := series.Column(column)
	if err != nil {
		return err
	}
	printSeriesPlot(data, fmt.Sprintf("%s (%s)", column, args[0]))
	return nil
}

func printSeriesPlot(data []float64, caption string) {
	fmt.Println(plotGraph(data, caption))
}

func watchSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	scheme, err := buildScheme(cfg)
	if err != nil {
		return err
	}
	cfg.SnapshotEvery = 0
	fr, err := models.Build(cfg.Model, cfg, scheme)
	if err != nil {
		return err
	}

	field := watchField
	if field == "" {
		field = defaultWatchField(cfg.Model)
	}
	title := fmt.Sprintf("simframe · %s · %s", cfg.Model, scheme.Name())
	return watch.Run(fr, title, field, cfg.H0, cfg.TEnd)
}

func defaultWatchField(model string) string {
	switch model {
	case "oscillator":
		return "sys.energy"
	case "lotka":
		return "sys.prey"
	default:
		return "sys.y"
	}
}

func exportRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	series, err := store.LoadSeries(args[0])
	if err != nil {
		return err
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch exportFmt {
	case "csv":
		return series.ExportCSV(out)
	case "json":
		return series.ExportJSON(out)
	default:
		return fmt.Errorf("unknown export format %q", exportFmt)
	}
}
