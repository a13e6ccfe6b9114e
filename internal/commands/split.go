package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/splitpay/internal/settlement"
)

func newSplitCommand(a *app) *cobra.Command {
	var (
		flags settleFlags
		total string
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Divide a total evenly across participants",
		Long: `Divide a total evenly across participants. Every share is the floor of
total/n; the remainder goes to one participant chosen by the configured
allocation.remainder policy, so the shares always add up to the total.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			return runSplit(cmd, a, flags, total)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&total, "total", "", "amount to divide (required)")
	_ = cmd.MarkFlagRequired("total")

	return cmd
}

func runSplit(cmd *cobra.Command, a *app, flags settleFlags, total string) error {
	amount, err := a.parseMoney(total)
	if err != nil {
		return fmt.Errorf("invalid --total: %w", err)
	}
	roster, err := parseRoster(flags.participants)
	if err != nil {
		return err
	}

	store, closeBank, err := a.openBank()
	if err != nil {
		return err
	}
	defer closeBank()

	h, err := flags.header(cmd, a, store, roster)
	if err != nil {
		return err
	}
	req, err := settlement.FromEvenSplit(h, amount, a.picker())
	if err != nil {
		return err
	}
	return flags.finish(cmd, a, store, req, roster)
}
