package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/daesim/internal/config"
	"github.com/san-kum/daesim/internal/export"
	"github.com/san-kum/daesim/internal/integrator"
	"github.com/san-kum/daesim/internal/models"
	"github.com/san-kum/daesim/internal/sim"
	"github.com/san-kum/daesim/internal/storage"
	"github.com/san-kum/daesim/internal/tui"
	"github.com/san-kum/daesim/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	reltol     float64
	abstol     float64
	iterative  bool
	family     string
	adjoint    bool
	save       bool
	phaseX     int
	phaseY     int
	svgOut     string
	sweepParam int
	sweepFrom  float64
	sweepTo    float64
	sweepN     int
	workers    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "daesim",
		Short: "implicit DAE integration lab with adjoint sensitivities",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "runs", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "integrate a model across its grid",
		Args:  cobra.ExactArgs(1),
		RunE:  runModel,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().Float64Var(&reltol, "reltol", 0, "relative tolerance override")
	runCmd.Flags().Float64Var(&abstol, "abstol", 0, "absolute tolerance override")
	runCmd.Flags().BoolVar(&iterative, "iterative", false, "use a Krylov corrector")
	runCmd.Flags().StringVar(&family, "krylov", "gmres", "krylov family (gmres, bicgstab, tfqmr)")
	runCmd.Flags().BoolVar(&adjoint, "adjoint", false, "run the backward pass with a unit terminal seed")
	runCmd.Flags().BoolVar(&save, "save", false, "store the trajectory under the data directory")
	runCmd.Flags().StringVar(&svgOut, "svg", "", "write the first state component to an SVG file")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "integrate with a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	liveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	phaseCmd := &cobra.Command{
		Use:   "phase [model]",
		Short: "plot a phase portrait of two state components",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&phaseX, "x", 0, "horizontal state component")
	phaseCmd.Flags().IntVar(&phaseY, "y", 1, "vertical state component")
	phaseCmd.Flags().StringVar(&svgOut, "svg", "", "also write the portrait to an SVG file")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "run a parallel sweep over one parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().IntVar(&sweepParam, "param", 0, "parameter index to vary")
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0.5, "first parameter value")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 2.0, "last parameter value")
	sweepCmd.Flags().IntVar(&sweepN, "n", 5, "number of values")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = one per CPU)")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list built-in models",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range models.Names() {
				m, _ := models.New(name)
				fmt.Printf("%-12s %s\n", name, m.Describe())
			}
		},
	}

	methodsCmd := &cobra.Command{
		Use:   "methods",
		Short: "list registered integration methods",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range integrator.Methods() {
				p, _ := integrator.Lookup(name)
				fmt.Printf("%-8s v%d  %s\n", p.Name, p.Version, p.Doc)
			}
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list preset configurations",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for model, ps := range config.Presets {
				if len(args) == 1 && args[0] != model {
					continue
				}
				for name := range ps {
					fmt.Printf("%s/%s\n", model, name)
				}
			}
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	rootCmd.AddCommand(runCmd, liveCmd, phaseCmd, sweepCmd, modelsCmd, methodsCmd, presetsCmd, listCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(model string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		if p := config.GetPreset(model, preset); p != nil {
			cfg = p
		} else {
			return nil, fmt.Errorf("no preset %q for model %q", preset, model)
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.Model = model
	return cfg, nil
}

func buildOptions(cfg *config.Config) integrator.Options {
	opts := cfg.Options()
	if reltol > 0 {
		opts.RelTol = reltol
	}
	if abstol > 0 {
		opts.AbsTol = abstol
	}
	if iterative {
		opts.Iterative = true
		cfg.Linear.Family = family
		opts.Family = cfg.Options().Family
		opts.Precondition = true
	}
	return opts
}

func runModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	m, err := models.New(cfg.Model)
	if err != nil {
		return err
	}
	opts := buildOptions(cfg)

	runner, err := sim.New(cfg.Model, m.System(), m.Grid(), opts)
	if err != nil {
		return err
	}
	defer runner.Close()

	x0, z0, p := m.Initial()
	res, err := runner.Run(context.Background(), x0, z0, p)
	if err != nil {
		return err
	}
	if adjoint {
		d := runner.Solver().Dimensions()
		if d.Nrx == 0 {
			return fmt.Errorf("model %q has no adjoint system", cfg.Model)
		}
		rx := make([]float64, d.Nrx)
		for i := range rx {
			rx[i] = 1
		}
		rz := make([]float64, d.Nrz)
		rp := make([]float64, d.Nrp)
		if err := runner.RunAdjoint(context.Background(), res, rx, rz, rp); err != nil {
			return err
		}
	}

	fmt.Println(viz.PlotTrajectory(res, 70, 14))
	if adjoint {
		fmt.Println(viz.PlotAdjoint(res, 70, 10))
	}
	fmt.Println(viz.StatsPanel(res))

	if save {
		store := storage.New(dataDir)
		if err := store.Init(); err != nil {
			return err
		}
		id, err := store.Save(cfg.Model, cfg.Method, opts.RelTol, opts.AbsTol, res)
		if err != nil {
			return err
		}
		fmt.Println("saved", id)
	}
	if svgOut != "" {
		ys := make([]float64, len(res.X))
		for i := range res.X {
			ys[i] = res.X[i][0]
		}
		if err := os.WriteFile(svgOut, []byte(export.CurveToSVG(res.Times, ys, 640, 320, "#00ff00")), 0644); err != nil {
			return err
		}
		fmt.Println("wrote", svgOut)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	m, err := models.New(cfg.Model)
	if err != nil {
		return err
	}
	lm, err := tui.NewModel(m, buildOptions(cfg))
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(lm).Run()
	return err
}

func phasePlot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	m, err := models.New(cfg.Model)
	if err != nil {
		return err
	}
	runner, err := sim.New(cfg.Model, m.System(), m.Grid(), buildOptions(cfg))
	if err != nil {
		return err
	}
	defer runner.Close()

	x0, z0, p := m.Initial()
	res, err := runner.Run(context.Background(), x0, z0, p)
	if err != nil {
		return err
	}
	nx := runner.Solver().Dimensions().Nx
	if phaseX >= nx || phaseY >= nx {
		return fmt.Errorf("component out of range, model has %d differential states", nx)
	}
	u := make([]float64, len(res.X))
	v := make([]float64, len(res.X))
	for i := range res.X {
		u[i] = res.X[i][phaseX]
		v[i] = res.X[i][phaseY]
	}
	canvas := viz.NewCanvas(70, 20)
	canvas.PhasePortrait(u, v)
	fmt.Print(canvas.String())
	if svgOut != "" {
		if err := os.WriteFile(svgOut, []byte(export.CanvasToSVG(canvas, 3)), 0644); err != nil {
			return err
		}
		fmt.Println("wrote", svgOut)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	m, err := models.New(cfg.Model)
	if err != nil {
		return err
	}
	x0, z0, p := m.Initial()
	if sweepParam >= len(p) {
		return fmt.Errorf("parameter index out of range, model has %d parameters", len(p))
	}
	if sweepN < 2 {
		return fmt.Errorf("need at least two sweep values")
	}

	params := make([][]float64, sweepN)
	for i := range params {
		row := append([]float64(nil), p...)
		row[sweepParam] = sweepFrom + (sweepTo-sweepFrom)*float64(i)/float64(sweepN-1)
		params[i] = row
	}

	e := sim.NewEnsemble(cfg.Model, m.System(), m.Grid(), buildOptions(cfg))
	e.Workers = workers
	members := e.Run(context.Background(), x0, z0, params)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARAM\tX(T)\tSTEPS\tERROR")
	for _, mb := range members {
		if mb.Err != nil {
			fmt.Fprintf(w, "%g\t-\t-\t%v\n", mb.P[sweepParam], mb.Err)
			continue
		}
		last := mb.Result.X[len(mb.Result.X)-1]
		fmt.Fprintf(w, "%g\t%.6g\t%d\t\n", mb.P[sweepParam], last[0], mb.Result.Stats.Steps)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	runs, err := store.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tMETHOD\tSTEPS\tADJOINT\tTIME")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\t%s\n",
			r.ID, r.Model, r.Method, r.Steps, r.Adjoint, r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
