package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/displib/app"
	"github.com/kilianp07/displib/core/search"
	"github.com/kilianp07/displib/infra/instancefile"
	"github.com/kilianp07/displib/pkg/export"
)

// errNoSolution makes the command exit non-zero when the search ends without
// a schedule.
var errNoSolution = errors.New("no solution")

func newSolveCmd(o *options) *cobra.Command {
	var (
		output    string
		format    string
		workers   int
		timeLimit float64
		nodeLimit int64
		gap       float64
		lp        bool
		routing   routingFlags
	)
	cmd := &cobra.Command{
		Use:   "solve <instance>",
		Short: "Solve an instance file or URL and write the solution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := *o.cfg
			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Solver.Workers = workers
			}
			if flags.Changed("time-limit") {
				cfg.Solver.TimeLimitSeconds = timeLimit
			}
			if flags.Changed("node-limit") {
				cfg.Solver.NodeLimit = nodeLimit
			}
			if flags.Changed("gap") {
				cfg.Solver.GapTolerance = gap
			}
			if flags.Changed("lp") {
				cfg.Solver.LPRootBound = lp
			}
			if err := cfg.Solver.Validate(); err != nil {
				return err
			}
			if err := routing.apply(cmd, &cfg.Routing); err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			svc, err := app.New(&cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			out, err := svc.SolveSource(ctx, args[0])
			if err != nil {
				return err
			}
			r := out.Result
			fmt.Fprintf(cmd.ErrOrStderr(), "run %s: status=%s objective=%g bound=%g gap=%.4f nodes=%d runtime=%s\n",
				out.RunID, out.Status, r.Objective, r.Bound, r.Gap, r.Stats.Nodes, r.Stats.Runtime)
			if out.Solution == nil {
				return fmt.Errorf("%w: status %s", errNoSolution, out.Status)
			}
			switch {
			case output == "":
				return export.Write(cmd.OutOrStdout(), f, out.Solution)
			case f == export.JSON:
				return instancefile.WriteSolution(output, out.Solution)
			}
			file, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := export.Write(file, f, out.Solution); err != nil {
				file.Close()
				return err
			}
			return file.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "solution file, stdout when empty")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or csv")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel search workers, one per CPU when 0")
	cmd.Flags().Float64VarP(&timeLimit, "time-limit", "t", 0, "wall-clock limit in seconds, 0 for none")
	cmd.Flags().Int64Var(&nodeLimit, "node-limit", 0, "explored node limit, 0 for none")
	cmd.Flags().Float64Var(&gap, "gap", search.DefaultGapTolerance, "relative gap at which the search stops, 0 for a proven optimum")
	cmd.Flags().BoolVar(&lp, "lp", false, "bound the root node with the LP relaxation")
	routing.bind(cmd)
	return cmd
}
