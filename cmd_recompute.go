package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"supplement-effects/batch"
)

var (
	recomputePriority string
	recomputeUsers    []string

	recomputeCmd = &cobra.Command{
		Use:   "recompute",
		Short: "Recomputes verdicts once and prints the batch result as JSON",
		Long: `Without --user every user active in the activity window is recomputed.
Failed users are listed in the result; the command itself only fails when
the candidate users cannot be loaded.`,
		RunE: runRecompute,
	}
)

func init() {
	recomputeCmd.Flags().StringVar(&recomputePriority, "priority", string(batch.PriorityLow), "low, normal or high (60, 90 or 180 days of history)")
	recomputeCmd.Flags().StringSliceVar(&recomputeUsers, "user", nil, "restrict to these user ids (repeatable)")
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	priority, err := batch.ParsePriority(recomputePriority)
	if err != nil {
		return err
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var res batch.Result
	if len(recomputeUsers) > 0 {
		res = a.processor.RunUsers(ctx, recomputeUsers, priority)
	} else if res, err = a.processor.Run(ctx, priority); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
