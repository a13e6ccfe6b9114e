package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/splitpay/internal/id"
	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/session"
	"github.com/cleared-dev/splitpay/internal/transfer"
	"github.com/cleared-dev/splitpay/internal/xerrors"
)

type transferOptions struct {
	from         int64
	to           string
	amount       string
	settlementID int64
	receiverMemo string
	senderMemo   string
	pin          string
	retries      int
}

func newTransferCommand(a *app) *cobra.Command {
	var opts transferOptions

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send money once, gated by your transfer PIN",
		Long: `Send money once, gated by your transfer PIN.

The PIN is read from --pin or, one attempt per line, from stdin. A wrong PIN
asks again until the attempts run out; the PIN is then locked and must be
reset with "splitpay pin reset". Failed calls are retried with the same
idempotency key, so the bank executes the transfer at most once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			return runTransfer(cmd, a, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.from, "from", 0, "withdrawal account id (default: your first account)")
	cmd.Flags().StringVar(&opts.to, "to", "", `receiver as "bankcode:number" (required)`)
	_ = cmd.MarkFlagRequired("to")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "amount to send (required)")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().Int64Var(&opts.settlementID, "settlement", 0, "settlement this payment belongs to")
	cmd.Flags().StringVar(&opts.receiverMemo, "memo", "", "text on the receiver's statement")
	cmd.Flags().StringVar(&opts.senderMemo, "sender-memo", "", "text on your statement")
	cmd.Flags().StringVar(&opts.pin, "pin", "", "transfer PIN (read from stdin when empty)")
	cmd.Flags().IntVar(&opts.retries, "retries", 2, "retries after a failed lookup or transfer call")

	cmd.AddCommand(newTransferStatusCommand(a))
	return cmd
}

func runTransfer(cmd *cobra.Command, a *app, opts transferOptions) error {
	out := cmd.OutOrStdout()

	amount, err := a.parseMoney(opts.amount)
	if err != nil {
		return fmt.Errorf("invalid --amount: %w", err)
	}
	bankCode, number, ok := strings.Cut(opts.to, ":")
	if !ok {
		return fmt.Errorf("invalid --to %q, want bankcode:number", opts.to)
	}

	store, closeBank, err := a.openBank()
	if err != nil {
		return err
	}
	defer closeBank()

	flow := a.flow(store)
	sess := a.session(cmd.Context())
	defer sess.Logout()

	withdrawal, err := withdrawalAccount(flow, sess, opts.from)
	if err != nil {
		return err
	}

	req := transfer.BeginRequest{
		Withdrawal: withdrawal.Ref(),
		Receiver:   model.ReceiverRef{BankCode: bankCode, Number: number},
		Amount:     amount,
	}
	if opts.settlementID > 0 {
		sid := opts.settlementID
		req.SettlementID = &sid
	}
	in, err := flow.Begin(sess, req)
	if err != nil {
		return err
	}

	lookup, err := lookupWithRetry(flow, sess, in, opts.retries)
	if err != nil {
		flow.Discard(in)
		return err
	}
	fmt.Fprintf(out, "Sending %s to %s (%s %s) from %s, balance %s\n",
		a.money(amount), lookup.ReceiverHolder, bankCode, number, lookup.WithdrawalNumber, a.money(lookup.WithdrawalBalance))

	pins := newPinSource(opts.pin, cmd.InOrStdin(), cmd.ErrOrStderr())
	memo := transfer.Memo{Receiver: opts.receiverMemo, Withdrawal: opts.senderMemo}

	pin, ok := pins.next()
	retries := opts.retries
	for {
		if !ok {
			flow.Discard(in)
			return errors.New("no PIN entered, transfer abandoned")
		}

		res, err := flow.Confirm(sess, in, pin, memo)
		switch {
		case err == nil:
			fmt.Fprintf(out, "Transfer %s confirmed at %s (key %s)\n",
				res.TransferID, res.ExecutedAt.Format("2006-01-02 15:04:05"), res.IdempotencyKey)
			return nil
		case errors.Is(err, transfer.ErrLocked), errors.Is(err, transfer.ErrPinLocked):
			if route, locked := in.Authorizer().Fallback(); locked {
				fmt.Fprintf(out, "PIN locked (%s). Reset it with `splitpay pin reset`.\n", route)
			}
			return err
		case errors.Is(err, transfer.ErrWrongPin), xerrors.IsValidation(err):
			fmt.Fprintf(out, "%v\n", err)
			pin, ok = pins.next()
		case xerrors.IsRecoverable(err):
			if retries <= 0 {
				return fmt.Errorf("giving up on %s: %w", in.Key(), err)
			}
			retries--
			a.logger.Named("transfer").Info("retrying transfer with the same key")
			fmt.Fprintf(out, "%v; retrying\n", err)
		default:
			return err
		}
	}
}

func withdrawalAccount(flow *transfer.Flow, sess *session.Session, accountID int64) (model.BankAccount, error) {
	accts, err := flow.Accounts(sess)
	if err != nil {
		return model.BankAccount{}, err
	}
	if len(accts) == 0 {
		return model.BankAccount{}, fmt.Errorf("member %d has no accounts", sess.Member().ID)
	}
	if accountID == 0 {
		return accts[0], nil
	}
	for _, acct := range accts {
		if acct.ID == accountID {
			return acct, nil
		}
	}
	return model.BankAccount{}, fmt.Errorf("account %d is not yours", accountID)
}

func lookupWithRetry(flow *transfer.Flow, sess *session.Session, in *transfer.Intent, retries int) (model.ReceiverLookup, error) {
	for {
		lookup, err := flow.Lookup(sess, in)
		if err == nil {
			return lookup, nil
		}
		if errors.Is(err, transfer.ErrReceiverNotFound) || !xerrors.IsRecoverable(err) || retries <= 0 {
			return model.ReceiverLookup{}, err
		}
		retries--
	}
}

// pinSource yields the --pin value first, then one PIN per stdin line.
type pinSource struct {
	flag    string
	scanner *bufio.Scanner
	prompt  io.Writer
}

func newPinSource(flag string, in io.Reader, prompt io.Writer) *pinSource {
	return &pinSource{flag: flag, scanner: bufio.NewScanner(in), prompt: prompt}
}

func (p *pinSource) next() (string, bool) {
	if p.flag != "" {
		pin := p.flag
		p.flag = ""
		return pin, true
	}
	fmt.Fprint(p.prompt, "PIN: ")
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

func newTransferStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <idempotency-key>",
		Short: "Show what the bank and the audit log know about a transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := id.ParseKey(args[0])
			if err != nil {
				return err
			}
			if err := a.load(); err != nil {
				return err
			}

			store, closeBank, err := a.openBank()
			if err != nil {
				return err
			}
			defer closeBank()

			out := cmd.OutOrStdout()
			res, found, err := store.StoredTransfer(key.String())
			if err != nil {
				return err
			}
			if found {
				fmt.Fprintf(out, "Bank: %s %s, %s to %s %s\n",
					res.Outcome, res.TransferID, a.money(res.Amount), res.Receiver.BankCode, res.Receiver.Number)
			} else {
				fmt.Fprintln(out, "Bank: no transfer executed with this key")
			}

			events, err := a.audit().ForKey(key.String())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tSTATUS\tDETAIL")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.Time.Format("2006-01-02 15:04:05"), ev.Action, ev.Status, ev.Detail)
			}
			return tw.Flush()
		},
	}
}
