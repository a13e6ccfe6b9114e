package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/splitpay/internal/allocation"
	"github.com/cleared-dev/splitpay/internal/auditlog"
	"github.com/cleared-dev/splitpay/internal/bank"
	"github.com/cleared-dev/splitpay/internal/buildinfo"
	"github.com/cleared-dev/splitpay/internal/config"
	"github.com/cleared-dev/splitpay/internal/id"
	"github.com/cleared-dev/splitpay/internal/logging"
	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/session"
	"github.com/cleared-dev/splitpay/internal/transfer"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "splitpay",
		Short:   "Split bills and pay settlement shares exactly once",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.dir, "dir", ".", "project directory")

	rootCmd.AddCommand(
		newInitCommand(),
		newAccountsCommand(a),
		newSplitCommand(a),
		newReceiptCommand(a),
		newSettleCommand(a),
		newTransferCommand(a),
		newPinCommand(a),
	)

	return rootCmd
}

// app holds what every project command needs once the project is loaded.
type app struct {
	dir    string
	cfg    *config.Config
	logger *zap.Logger
}

// load reads .env and splitpay.yaml from the project directory and builds
// the logger.
func (a *app) load() error {
	if err := config.LoadEnvFile(filepath.Join(a.dir, ".env")); err != nil {
		return err
	}
	cfg, err := config.Load(a.path(config.Path()))
	if err != nil {
		return fmt.Errorf("loading project (run `splitpay init` first?): %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.dir, p)
}

// openBank opens the reference bank, with Redis reservations when
// configured. The returned func closes everything.
func (a *app) openBank() (*bank.Store, func(), error) {
	opts := bank.Options{
		ReservationTTL: a.cfg.Bank.ReservationTTL,
		MaxPinFailures: a.cfg.Pin.MaxAttempts,
		Logger:         a.logger.Named("bank"),
	}
	var client *redis.Client
	if rc := a.cfg.Bank.Redis; rc.Addr != "" {
		client = redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		opts.Reservations = bank.NewRedisReservations(client, "")
	}

	store, err := bank.Open(a.path(a.cfg.Bank.DBPath), opts)
	if err != nil {
		if client != nil {
			client.Close()
		}
		return nil, nil, err
	}
	if _, err := store.SweepReservations(); err != nil {
		a.logger.Warn("sweeping expired reservations", zap.Error(err))
	}
	closeFn := func() {
		store.Close()
		if client != nil {
			client.Close()
		}
		_ = a.logger.Sync()
	}
	return store, closeFn, nil
}

func (a *app) picker() allocation.Picker {
	p, err := allocation.PickerFor(a.cfg.Allocation.Remainder)
	if err != nil {
		return allocation.First
	}
	return p
}

func (a *app) session(ctx context.Context) *session.Session {
	return session.New(ctx, session.Member{ID: a.cfg.Member.ID, Name: a.cfg.Member.Name})
}

func (a *app) audit() *auditlog.Log {
	return auditlog.New(a.path(a.cfg.Audit.Dir))
}

func (a *app) flow(store *bank.Store) *transfer.Flow {
	return transfer.NewFlow(store, store, store, id.NewIssuer(), a.audit(), a.logger.Named("transfer"), transfer.Options{
		PinLength:   a.cfg.Pin.Length,
		MaxAttempts: a.cfg.Pin.MaxAttempts,
	})
}

func (a *app) money(amount int64) string {
	return model.FormatAmount(amount, a.cfg.Currency.Exponent) + " " + a.cfg.Currency.Code
}

func (a *app) parseMoney(s string) (int64, error) {
	return model.ParseAmount(s, a.cfg.Currency.Exponent)
}

// parseRoster parses "1:Leader,2:Jisoo" or "1,2". Names default to "#id".
func parseRoster(s string) ([]model.Participant, error) {
	var roster []model.Participant
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, name, _ := strings.Cut(part, ":")
		pid, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("participant %q: %w", part, err)
		}
		if name == "" {
			name = "#" + idStr
		}
		roster = append(roster, model.Participant{ID: pid, Name: name})
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("no participants given")
	}
	return roster, nil
}
