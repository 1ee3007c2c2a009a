package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/san-kum/stitchsim/internal/check"
	"github.com/san-kum/stitchsim/internal/config"
	"github.com/san-kum/stitchsim/internal/scenario"
	"github.com/san-kum/stitchsim/internal/stitch"
	"github.com/san-kum/stitchsim/internal/storage"
	"github.com/san-kum/stitchsim/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir string
	verbose bool
	// Scenario overrides
	configFile string
	seed       int64
	workers    int
	// Output
	noSave      bool
	plot        bool
	overlay     bool
	jsonOut     string
	showMetrics bool
	// Check
	steps     int
	tolerance float64
	// Bench
	workerList string
	repeats    int
)

// main registers the stitchsim commands and runs the root command. It exits
// with status 1 if the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:          "stitchsim",
		Short:        "compose forward simulations and evaluate them as one",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".stitchsim", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "evaluate a composite scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	addScenarioFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().BoolVar(&plot, "plot", false, "plot predicted data")
	runCmd.Flags().BoolVar(&overlay, "overlay", false, "plot one series per pairing block")
	runCmd.Flags().StringVar(&jsonOut, "json", "", "also export the run to this JSON file")
	runCmd.Flags().BoolVar(&showMetrics, "metrics", false, "print engine metrics in Prometheus text format")

	checkCmd := &cobra.Command{
		Use:   "check [preset]",
		Short: "run derivative, adjoint and sensitivity diagonal checks",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkScenario,
	}
	addScenarioFlags(checkCmd)
	checkCmd.Flags().IntVar(&steps, "steps", 6, "taylor test steps")
	checkCmd.Flags().Float64Var(&tolerance, "tol", check.DefaultAdjointTolerance, "adjoint tolerance")

	benchCmd := &cobra.Command{
		Use:   "bench [preset]",
		Short: "time a scenario at several worker counts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchScenario,
	}
	addScenarioFlags(benchCmd)
	benchCmd.Flags().StringVar(&workerList, "workers-list", "1,2,4", "comma separated worker counts")
	benchCmd.Flags().IntVar(&repeats, "repeats", 50, "evaluations per worker count")

	presetsCmd := &cobra.Command{
		Use:   "presets [variant]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().BoolVar(&overlay, "overlay", false, "plot one series per pairing block")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	rootCmd.AddCommand(runCmd, checkCmd, benchCmd, presetsCmd, listCmd, plotCmd, exportCmd, exportCSVCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "scenario file path (yaml)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent pairings (0 uses the scenario or CPU count)")
}

// loadScenario resolves the scenario config. A config file overrides the
// preset and explicit flags override both.
func loadScenario(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if len(args) > 0 {
		cfg = config.FindPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (see 'stitchsim presets')", args[0])
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}
	return cfg, nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	s, err := scenario.New(cfg, nil, slog.Default(), stitch.WithMetrics(stitch.NewMetrics(reg)))
	if err != nil {
		return err
	}

	fmt.Println(viz.Title.Render(fmt.Sprintf("running %s (%s, %d pairings)", cfg.Name, s.Composite().Kind(), cfg.Pairings())))
	start := time.Now()

	result, err := s.Run(cmd.Context())
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	fmt.Printf("completed in %v\n", elapsed)

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(cfg, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}

	if jsonOut != "" {
		if err := storage.ExportJSON(jsonOut, cfg, result); err != nil {
			return err
		}
	}

	fmt.Println("\nmetrics:")
	fmt.Print(viz.MetricTable(result.Metrics))
	fmt.Printf("\n  dpred    %s\n", viz.Sparkline(result.Dpred, 60))
	fmt.Printf("  jtjdiag  %s\n", viz.Sparkline(result.JtJDiag, 60))

	if plot {
		graph, err := viz.PlotData(result.Dpred, plotOffsets(cfg.Variant, result.Offsets), viz.PlotOptions{Overlay: overlay})
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(graph)
	}

	if showMetrics {
		fmt.Println()
		return writeMetrics(reg)
	}
	return nil
}

func plotOffsets(variant string, offsets []int) []int {
	if variant == "sum" {
		return nil
	}
	return offsets
}

func writeMetrics(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}

func checkScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	s, err := scenario.New(cfg, nil, slog.Default())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	c := s.Composite()
	m := s.Model()

	fmt.Println(viz.Title.Render(fmt.Sprintf("checking %s (%s)", cfg.Name, c.Kind())))
	fmt.Println(viz.Separator(60))

	deriv, err := check.Derivative(ctx, c, m, s.Direction(), check.DerivativeOptions{Steps: steps, Logger: slog.Default()})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "H\tERR0\tERR1\tORDER0\tORDER1")
	for _, st := range deriv.Steps {
		fmt.Fprintf(w, "%.0e\t%.3e\t%.3e\t%s\t%s\n", st.H, st.Err0, st.Err1, formatOrder(st.Order0), formatOrder(st.Order1))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	note := ""
	if deriv.Linear {
		note = " (linear, residual at numerical zero)"
	}
	fmt.Printf("derivative  %s%s\n\n", viz.Status(deriv.Passed), note)

	adj, err := check.Adjoint(ctx, c, m, s.Direction(), s.DataProbe(), tolerance)
	if err != nil {
		return err
	}
	fmt.Printf("adjoint     %s  <Jv,u>=%.12g  <v,Jtu>=%.12g  diff=%.3e\n", viz.Status(adj.Passed), adj.JvDotU, adj.VDotJtu, adj.Diff)

	diag, err := check.Diagonal(ctx, c, m)
	if err != nil {
		return err
	}
	fmt.Printf("jtjdiag     max relative deviation from explicit JᵀJ: %.3e\n", diag.MaxRelErr)

	if !deriv.Passed || !adj.Passed {
		return fmt.Errorf("checks failed for %s", cfg.Name)
	}
	return nil
}

func formatOrder(x float64) string {
	if math.IsNaN(x) {
		return "-"
	}
	return fmt.Sprintf("%.3f", x)
}

func benchScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}

	counts, err := parseWorkers(workerList)
	if err != nil {
		return err
	}

	fmt.Printf("benchmarking %s (%d pairings, %d evaluations, %d cpus)\n\n", cfg.Name, cfg.Pairings(), repeats, runtime.NumCPU())
	fmt.Printf("%-8s  %-12s  %-12s\n", "workers", "total_ms", "per_eval_us")
	fmt.Println(strings.Repeat("-", 36))

	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	for _, n := range counts {
		run := cfg.Clone()
		run.Workers = n
		s, err := scenario.New(run, nil, quiet)
		if err != nil {
			return err
		}
		elapsed, err := timeEvaluations(cmd.Context(), s, repeats)
		if err != nil {
			return err
		}
		fmt.Printf("%-8d  %12.2f  %12.2f\n", n, float64(elapsed.Microseconds())/1000, float64(elapsed.Microseconds())/float64(repeats))
	}
	return nil
}

// timeEvaluations runs Dpred and Jtvec at a fresh model each time so the
// composite cache never short-circuits the work.
func timeEvaluations(ctx context.Context, s *scenario.Scenario, n int) (time.Duration, error) {
	c := s.Composite()
	u := s.DataProbe()
	models := make([][]float64, n)
	for i := range models {
		models[i] = s.Model().Axpy(1e-3*float64(i), s.Direction())
	}

	start := time.Now()
	for _, m := range models {
		if _, err := c.Dpred(ctx, m, nil); err != nil {
			return 0, err
		}
		if _, err := c.Jtvec(ctx, m, u, nil); err != nil {
			return 0, err
		}
	}
	return time.Since(start), nil
}

func parseWorkers(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid worker count: %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no worker counts given")
	}
	return out, nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	variants := config.ListVariants()
	if len(args) > 0 {
		variants = args
	}
	for _, variant := range variants {
		presets := config.ListPresets(variant)
		if len(presets) == 0 {
			fmt.Printf("no presets for variant: %s\n", variant)
			continue
		}
		fmt.Printf("presets for %s:\n", variant)
		for _, p := range presets {
			cfg := config.GetPreset(variant, p)
			fmt.Printf("  %-14s %s\n", p, viz.Subtle.Render(fmt.Sprintf("%d pairings, model size %d", cfg.Pairings(), cfg.ModelSize)))
		}
	}
	return nil
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
	fmt.Fprintln(w, "ID\tSCENARIO\tVARIANT\tTIME\tNDATA\tNMODEL\tSEED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			run.ID,
			run.Scenario,
			run.Variant,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.NData,
			run.NModel,
			run.Seed,
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

	dpred, _, err := st.LoadData(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s (%s)\n", meta.Scenario, meta.Variant)
	fmt.Printf("data: %d\n\n", len(dpred))

	graph, err := viz.PlotData(dpred, plotOffsets(meta.Variant, meta.Offsets), viz.PlotOptions{Overlay: overlay})
	if err != nil {
		return err
	}
	fmt.Println(graph)

	model, diag, err := st.LoadModel(runID)
	if err == nil && len(model) > 0 {
		fmt.Printf("\n  model    %s\n", viz.Sparkline(model, 60))
		fmt.Printf("  jtjdiag  %s\n", viz.Sparkline(diag, 60))
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	dpred, blocks, err := st.LoadData(args[0])
	if err != nil {
		return err
	}

	if len(dpred) == 0 {
		return fmt.Errorf("no data to export")
	}

	w := csv.NewWriter(os.Stdout)
	if err := w.Write([]string{"index", "block", "dpred"}); err != nil {
		return err
	}
	for i := range dpred {
		row := []string{strconv.Itoa(i), strconv.Itoa(blocks[i]), strconv.FormatFloat(dpred[i], 'g', -1, 64)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
