package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/rigid/internal/config"
	"github.com/san-kum/rigid/internal/dynamics"
	"github.com/san-kum/rigid/internal/export"
	"github.com/san-kum/rigid/internal/metrics"
	"github.com/san-kum/rigid/internal/optim"
	"github.com/san-kum/rigid/internal/scene"
	"github.com/san-kum/rigid/internal/storage"
	"github.com/san-kum/rigid/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	threads    int
	steps      int
	dt         float64
	verbose    bool
	jsonOut    bool
	saveConfig string
	threadList []int
	column     string
	svgOut     string
	tuneParams []string
	tuneMetric string

	logger *log.Logger
)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

// main registers the commands and runs the preset picker when no
// subcommand is given.
func main() {
	rootCmd := &cobra.Command{
		Use:   "rigid",
		Short: "parallel rigid body physics",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = log.NewWithOptions(os.Stderr, log.Options{
				ReportTimestamp: true,
				Prefix:          "rigid",
			})
			if verbose {
				logger.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(viz.NewPicker(threads, worldOptions()...), tea.WithAltScreen())
			final, err := p.Run()
			if picker, ok := final.(viz.Picker); ok {
				if lm, ok := picker.Live(); ok {
					lm.Close()
				}
			}
			return err
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rigid", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().IntVar(&threads, "threads", 0, "worker threads (0 keeps the scene setting)")

	sceneFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
		cmd.Flags().StringVar(&preset, "preset", config.DefaultScene, "preset scene")
		cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "steps to run")
		cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a scene and store the result",
		RunE:  runScene,
	}
	sceneFlags(runCmd)
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "write the run as JSON to stdout instead of storing it")
	runCmd.Flags().StringVar(&saveConfig, "save-config", "", "write the resolved config to this path")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "measure step throughput across thread counts",
		RunE:  benchScene,
	}
	sceneFlags(benchCmd)
	benchCmd.Flags().IntSliceVar(&threadList, "thread-list", []int{1, 2, 4, 8}, "thread counts to compare")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "check that a scene ends bit-identical at every thread count",
		RunE:  verifyScene,
	}
	sceneFlags(verifyCmd)
	verifyCmd.Flags().IntSliceVar(&threadList, "thread-list", []int{1, 2, 4}, "thread counts to compare")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "step a scene with live visualization",
		RunE:  runLive,
	}
	sceneFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored trace",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&column, "column", "kinetic_energy", "trace column to plot, or all")
	plotCmd.Flags().StringVar(&svgOut, "svg", "", "also write the column as SVG to this path")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "run a scene and draw its final state as SVG",
		RunE:  snapshotScene,
	}
	sceneFlags(snapshotCmd)
	snapshotCmd.Flags().StringVar(&svgOut, "out", "snapshot.svg", "output path")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid-search world settings against a metric",
		Long:  "Each --param is name=v1,v2,... Known names: " + strings.Join(optim.Params(), ", "),
		RunE:  tuneScene,
	}
	sceneFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", []string{"solver_iterations=4,8,16"}, "parameter grid")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "max_penetration", "metric to minimize")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(titleStyle.Render("presets"))
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, name := range config.ListPresets() {
				cfg, _ := config.GetPreset(name)
				fmt.Fprintf(w, "  %s\t%d bodies\t%s\n", name, len(cfg.Scene.Bodies), cfg.Scene.Description)
			}
			return w.Flush()
		},
	}

	rootCmd.AddCommand(runCmd, benchCmd, verifyCmd, liveCmd, listCmd, plotCmd, exportCmd, presetsCmd, snapshotCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func worldOptions() []dynamics.Option {
	if logger == nil {
		return nil
	}
	return []dynamics.Option{dynamics.WithLogger(logger)}
}

// loadConfig resolves the scene from --config or --preset and applies the
// explicitly set run flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.GetPreset(preset)
		if errors.Is(err, config.ErrUnknownPreset) {
			err = fmt.Errorf("%w (available: %s)", err, strings.Join(config.ListPresets(), ", "))
		}
	}
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("steps") {
		cfg.Run.Steps = steps
	}
	if cmd.Flags().Changed("dt") {
		cfg.Run.Dt = dt
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if saveConfig != "" {
		if err := config.Save(saveConfig, cfg); err != nil {
			return err
		}
		logger.Info("config written", "path", saveConfig)
	}

	s, err := scene.Build(cfg, threads, worldOptions()...)
	if err != nil {
		return err
	}
	defer s.Close()

	r := scene.NewRunner(s)
	for _, m := range metrics.Standard() {
		r.AddMetric(m)
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("running", "scene", s.Name, "steps", cfg.Run.Steps, "threads", s.World.ThreadPool().ThreadCount())
	start := time.Now()
	result, err := r.Run(ctx, cfg.Run.Steps, cfg.Run.Dt)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	elapsed := time.Since(start)
	for _, e := range result.Errors {
		logger.Error("step failed", "err", e)
	}

	poolThreads := s.World.ThreadPool().ThreadCount()
	if jsonOut {
		return storage.ExportJSON(os.Stdout, s.Name, poolThreads, cfg.Run.Dt, result)
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(s.Name, poolThreads, cfg.Run.Dt, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	fmt.Printf("hash: %016x\n", result.Hash)
	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, result.Metrics[name])
	}

	if len(result.Errors) > 0 {
		return result.Errors[0]
	}
	return nil
}

func benchScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("benchmarking %s, %d steps\n\n", cfg.Scene.Name, cfg.Run.Steps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THREADS\tTIME\tSTEPS/SEC\tCONTACTS\tCOLORS\tOVERFLOW\tISLANDS")

	for _, n := range threadList {
		s, err := scene.Build(cfg, n, worldOptions()...)
		if err != nil {
			return err
		}
		start := time.Now()
		result, err := scene.NewRunner(s).Run(ctx, cfg.Run.Steps, cfg.Run.Dt)
		elapsed := time.Since(start)
		s.Close()
		if err != nil {
			return err
		}

		st := result.Stats
		fmt.Fprintf(w, "%d\t%v\t%.0f\t%d\t%d\t%d\t%d\n",
			n, elapsed.Round(time.Millisecond), float64(result.StepsTaken)/elapsed.Seconds(),
			st.Contacts, st.Colors, st.Overflow, st.Islands)
	}

	return w.Flush()
}

func verifyScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runs, err := scene.NewEnsemble(cfg, threadList, worldOptions()...).Run(ctx, cfg.Run.Steps, cfg.Run.Dt)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THREADS\tSTEPS\tHASH")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%d\t%016x\n", r.Threads, r.Result.StepsTaken, r.Hash)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !scene.Deterministic(runs) {
		return fmt.Errorf("%s diverges across thread counts", cfg.Scene.Name)
	}
	fmt.Println(viz.StatusRunning.Render("deterministic"))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, err := viz.NewLiveModel(cfg, threads, worldOptions()...)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if lm, ok := final.(viz.LiveModel); ok {
		lm.Close()
	} else {
		m.Close()
	}
	return err
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENE\tTIME\tSTEPS\tDT\tTHREADS\tHASH")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4fs\t%d\t%s\n",
			run.ID,
			run.Scene,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Dt,
			run.Threads,
			run.Hash,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	columns, _, rows, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scene: %s\n", meta.Scene)
	fmt.Printf("samples: %d\n\n", len(rows))

	names := []string{column}
	if column == "all" {
		names = columns
	}
	for _, name := range names {
		data, ok := storage.Column(columns, rows, name)
		if !ok {
			return fmt.Errorf("unknown column %q (available: %s)", name, strings.Join(columns, ", "))
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if svgOut != "" && column != "all" {
		data, _ := storage.Column(columns, rows, column)
		if err := os.WriteFile(svgOut, []byte(export.TraceToSVG(data, 800, 300, "#00ff88")), 0644); err != nil {
			return err
		}
		logger.Info("plot written", "path", svgOut)
	}

	return nil
}

func snapshotScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := scene.Build(cfg, threads, worldOptions()...)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()
	result, err := scene.NewRunner(s).Run(ctx, cfg.Run.Steps, cfg.Run.Dt)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return result.Errors[0]
	}

	f, err := os.Create(svgOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.WriteSceneSVG(f, s, 120, 60, viz.ThemeCyberpunk, 4); err != nil {
		return err
	}
	logger.Info("snapshot written", "path", svgOut, "time", s.World.Time())
	return nil
}

func parseGrid(params []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(params))
	ranges := make([][]float64, 0, len(params))
	for _, param := range params {
		name, list, ok := strings.Cut(param, "=")
		if !ok || list == "" {
			return nil, nil, fmt.Errorf("bad --param %q, want name=v1,v2", param)
		}
		var vals []float64
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad --param %q: %w", param, err)
			}
			vals = append(vals, v)
		}
		names = append(names, strings.TrimSpace(name))
		ranges = append(ranges, vals)
	}
	return names, ranges, nil
}

func tuneScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(tuneParams)
	if err != nil {
		return err
	}
	objective, err := optim.SceneObjective(cfg, tuneMetric, cfg.Run.Steps, threads)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("tuning", "scene", cfg.Scene.Name, "params", names, "metric", tuneMetric)
	best, val, err := optim.NewGridSearch(names, ranges).Search(ctx, objective)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("best"))
	for _, name := range names {
		fmt.Printf("  %s: %g\n", name, best[name])
	}
	fmt.Printf("  %s: %.6f\n", tuneMetric, val)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	columns, times, rows, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}
	return storage.WriteJSON(os.Stdout, storage.ExportData{
		RunMetadata: *meta,
		Columns:     columns,
		Times:       times,
		Trace:       rows,
	})
}
