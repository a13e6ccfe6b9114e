package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/splitpay/internal/bank"
	"github.com/cleared-dev/splitpay/internal/model"
)

func newAccountsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List your bank accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			return runAccounts(cmd, a)
		},
	}
	cmd.AddCommand(newAccountsImportCommand(a), newAccountsExportCommand(a))
	return cmd
}

func runAccounts(cmd *cobra.Command, a *app) error {
	store, closeBank, err := a.openBank()
	if err != nil {
		return err
	}
	defer closeBank()

	sess := a.session(cmd.Context())
	defer sess.Logout()

	accts, err := a.flow(store).Accounts(sess)
	if err != nil {
		return err
	}
	if len(accts) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No accounts for member %d.\n", a.cfg.Member.ID)
		return nil
	}
	writeAccounts(cmd.OutOrStdout(), accts, a.money)
	return nil
}

func newAccountsImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Add bank accounts from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening accounts file: %w", err)
			}
			defer f.Close()

			accts, err := bank.ReadAccounts(f)
			if err != nil {
				return err
			}

			store, closeBank, err := a.openBank()
			if err != nil {
				return err
			}
			defer closeBank()

			created, err := store.Seed(accts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d accounts (%d already present)\n", created, len(accts)-created)
			return nil
		},
	}
}

func newAccountsExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write every bank account as CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}

			store, closeBank, err := a.openBank()
			if err != nil {
				return err
			}
			defer closeBank()

			accts, err := store.AllAccounts()
			if err != nil {
				return err
			}
			return bank.WriteAccounts(cmd.OutOrStdout(), accts)
		},
	}
}

func writeAccounts(out io.Writer, accts []model.BankAccount, money func(int64) string) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBANK\tNUMBER\tHOLDER\tBALANCE")
	for _, acct := range accts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", acct.ID, acct.BankName, acct.Number, acct.Holder, money(acct.Balance))
	}
	tw.Flush()
}
