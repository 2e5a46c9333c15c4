package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/kilianp07/displib/core/conflict"
	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/model"
	"github.com/kilianp07/displib/infra/instancefile"
)

type conflictStats struct {
	Resources int `json:"resources"`
	Entries   int `json:"entries"`
	Pairs     int `json:"pairs"`
	Swaps     int `json:"swaps"`
}

type inspectReport struct {
	Instance  model.Stats   `json:"instance"`
	Conflicts conflictStats `json:"conflicts"`
	Model     encode.Stats  `json:"model"`
	Horizon   int64         `json:"horizon"`
}

func newInspectCmd(o *options) *cobra.Command {
	var routing routingFlags
	cmd := &cobra.Command{
		Use:   "inspect <instance>",
		Short: "Print instance, conflict and model statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := o.cfg.Routing
			if err := routing.apply(cmd, &policy); err != nil {
				return err
			}
			in, err := instancefile.Open(cmd.Context(), instancefile.NewFetcher(o.cfg.Source), args[0])
			if err != nil {
				return err
			}
			idx := conflict.NewIndex(in)
			m, err := encode.Encode(in, idx, policy)
			if err != nil {
				return err
			}
			rep := inspectReport{
				Instance: in.Stats(),
				Conflicts: conflictStats{
					Resources: len(idx.Resources()),
					Entries:   len(idx.Conflicts),
					Pairs:     len(idx.Pairs),
					Swaps:     len(idx.Swaps),
				},
				Model:   m.Stats(),
				Horizon: m.Horizon,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	routing.bind(cmd)
	return cmd
}
