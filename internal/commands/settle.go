package commands

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/splitpay/internal/bank"
	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/settlement"
)

// settleFlags are shared by split and receipt.
type settleFlags struct {
	participants string
	groupID      int64
	accountID    int64
	csvPath      string
	submit       bool
}

func (f *settleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.participants, "participants", "", `participants as "id[:name],..." (required)`)
	_ = cmd.MarkFlagRequired("participants")
	cmd.Flags().Int64Var(&f.groupID, "group", 0, "group id the settlement belongs to")
	cmd.Flags().Int64Var(&f.accountID, "account", 0, "account that receives the shares (default: your first account)")
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "also write the shares to this CSV file")
	cmd.Flags().BoolVar(&f.submit, "submit", false, "create the settlement at the bank")
}

// header resolves the settlement header, defaulting the settlement account to
// the leader's first account.
func (f *settleFlags) header(cmd *cobra.Command, a *app, store *bank.Store, roster []model.Participant) (settlement.Header, error) {
	h := settlement.Header{
		LeaderID:            a.cfg.Member.ID,
		SettlementAccountID: f.accountID,
		ParticipantIDs:      model.ParticipantIDs(roster),
	}
	if f.groupID > 0 {
		g := f.groupID
		h.GroupID = &g
	}
	if h.SettlementAccountID == 0 {
		accts, err := store.ListAccounts(cmd.Context(), a.cfg.Member.ID)
		if err != nil {
			return h, err
		}
		if len(accts) == 0 {
			return h, fmt.Errorf("member %d has no account to settle into; pass --account", a.cfg.Member.ID)
		}
		h.SettlementAccountID = accts[0].ID
	}
	return h, nil
}

// finish prints the request, writes the CSV and submits when asked.
func (f *settleFlags) finish(cmd *cobra.Command, a *app, store *bank.Store, req model.SettlementRequest, roster []model.Participant) error {
	out := cmd.OutOrStdout()
	names := make(map[int64]string, len(roster))
	for _, p := range roster {
		names[p.ID] = p.Name
	}
	if _, ok := names[req.LeaderID]; !ok {
		names[req.LeaderID] = a.cfg.Member.Name
	}

	writeShares(out, a, req, names)

	if f.csvPath != "" {
		file, err := os.Create(f.csvPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", f.csvPath, err)
		}
		if err := settlement.WriteShares(file, req, names, a.cfg.Currency.Exponent); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", f.csvPath, err)
		}
	}

	if !f.submit {
		return nil
	}
	id, err := settlement.NewSubmitter(store, a.logger.Named("settlement")).Submit(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created settlement %d\n", id)
	return nil
}

func writeShares(out io.Writer, a *app, req model.SettlementRequest, names map[int64]string) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tNAME\tAMOUNT")
	for _, ma := range req.MemberAmounts {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", ma.MemberID, names[ma.MemberID], a.money(ma.Amount))
	}
	fmt.Fprintf(tw, "\tTotal\t%s\n", a.money(req.TotalAmount))
	tw.Flush()
}

func newSettleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "settle <settlement-id>",
		Short: "Show a settlement recorded at the bank and who has paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid settlement id %q", args[0])
			}
			if err := a.load(); err != nil {
				return err
			}

			store, closeBank, err := a.openBank()
			if err != nil {
				return err
			}
			defer closeBank()

			s, err := store.Settlement(id)
			if errors.Is(err, bank.ErrSettlementNotFound) {
				return fmt.Errorf("settlement %d not found", id)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Settlement %d (%s), leader %d, total %s\n", s.ID, s.Mode, s.LeaderID, a.money(s.TotalAmount))
			if s.ReceiptID != nil {
				fmt.Fprintf(out, "Receipt %d, %d items\n", *s.ReceiptID, len(s.ItemMembers))
			}
			if s.Completed() {
				fmt.Fprintf(out, "Completed %s\n", s.CompletedAt.Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "In progress")
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MEMBER\tAMOUNT\tSTATUS\tPAID AT")
			for _, member := range slices.Sorted(maps.Keys(s.Shares)) {
				status, paidAt := "pending", ""
				if s.MemberStatus[member] == model.SharePaid {
					status = "paid"
					paidAt = s.PaidAt[member].Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", member, a.money(s.Shares[member]), status, paidAt)
			}
			return tw.Flush()
		},
	}
}
