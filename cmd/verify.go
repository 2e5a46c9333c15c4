package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/displib/core/solution"
	"github.com/kilianp07/displib/infra/instancefile"
)

func newVerifyCmd(o *options) *cobra.Command {
	var (
		tolerance float64
		routing   routingFlags
	)
	cmd := &cobra.Command{
		Use:   "verify <instance> <solution>",
		Short: "Check a solution against an instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := o.cfg.Routing
			if err := routing.apply(cmd, &policy); err != nil {
				return err
			}
			in, err := instancefile.Open(cmd.Context(), instancefile.NewFetcher(o.cfg.Source), args[0])
			if err != nil {
				return err
			}
			sol, err := instancefile.ReadSolution(args[1])
			if err != nil {
				return err
			}
			if err := solution.Verify(in, sol, solution.VerifyOptions{Policy: policy, Tolerance: tolerance}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %d events, objective_value %g\n", len(sol.Events), sol.ObjectiveValue)
			return nil
		},
	}
	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-6, "absolute slack on objective_value")
	routing.bind(cmd)
	return cmd
}
