package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/splitpay/internal/bank"
	"github.com/cleared-dev/splitpay/internal/config"
)

type initOptions struct {
	name     string
	memberID int64
	fixture  string
	accounts string
	currency string
	exponent int32
	pin      string
}

func newInitCommand() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new splitpay project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.Context(), cmd.OutOrStdout(), absDir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "your display name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().Int64Var(&opts.memberID, "member", 1, "your member id")
	cmd.Flags().StringVar(&opts.fixture, "fixture", "demo", `bank fixture to seed ("demo" or "empty")`)
	cmd.Flags().StringVar(&opts.accounts, "accounts", "", "seed bank accounts from this CSV instead of the fixture")
	cmd.Flags().StringVar(&opts.currency, "currency", "KRW", "currency code")
	cmd.Flags().Int32Var(&opts.exponent, "exponent", 0, "digits after the decimal point")
	cmd.Flags().StringVar(&opts.pin, "pin", "", "initial transfer PIN (6 digits)")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, dir string, opts initOptions) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Write splitpay.yaml.
	cfg := config.Default(opts.name)
	cfg.Member.ID = opts.memberID
	cfg.Currency.Code = opts.currency
	cfg.Currency.Exponent = opts.exponent
	cfg.Bank.Fixture = opts.fixture
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if err := config.Save(filepath.Join(dir, config.FileName), cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, cfg.Audit.Dir), 0o755); err != nil {
		return fmt.Errorf("creating audit directory: %w", err)
	}

	// Seed the reference bank.
	seed := bank.DefaultAccounts(opts.fixture)
	if opts.accounts != "" {
		f, err := os.Open(opts.accounts)
		if err != nil {
			return fmt.Errorf("opening accounts file: %w", err)
		}
		seed, err = bank.ReadAccounts(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("reading accounts file: %w", err)
		}
	}

	store, err := bank.Open(filepath.Join(dir, cfg.Bank.DBPath), bank.Options{
		ReservationTTL: cfg.Bank.ReservationTTL,
		MaxPinFailures: cfg.Pin.MaxAttempts,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	created, err := store.Seed(seed)
	if err != nil {
		return fmt.Errorf("seeding bank: %w", err)
	}
	if opts.pin != "" {
		if err := store.SetPin(ctx, cfg.Member.ID, opts.pin); err != nil {
			return fmt.Errorf("setting pin: %w", err)
		}
	}

	// Write .gitignore.
	gitignore := cfg.Bank.DBPath + "\n.env\n" + cfg.Audit.Dir + "/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	fmt.Fprintf(out, "Initialized splitpay project at %s (%d accounts seeded)\n", dir, created)
	if opts.pin == "" {
		fmt.Fprintln(out, "Set a transfer PIN with `splitpay pin set` before paying.")
	}
	return nil
}
