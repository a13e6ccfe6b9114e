package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/ocr"
	"github.com/cleared-dev/splitpay/internal/receipt"
	"github.com/cleared-dev/splitpay/internal/settlement"
)

type receiptOptions struct {
	settleFlags
	format    string
	exclude   []string
	inactive  []string
	prices    []string
	recompute bool
}

func newReceiptCommand(a *app) *cobra.Command {
	var opts receiptOptions

	cmd := &cobra.Command{
		Use:   "receipt <file>",
		Short: "Split a scanned receipt item by item",
		Long: `Split a scanned receipt item by item. Every participant starts on every
item; --exclude takes a participant off one item and --inactive drops an
item entirely. Each item price is divided with the same exact-sum rule as
an even split.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			return runReceipt(cmd, a, args[0], opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.format, "format", "", "receipt format (json, yaml, csv); default from extension")
	cmd.Flags().StringArrayVar(&opts.exclude, "exclude", nil, `take a participant off an item, "item:member"`)
	cmd.Flags().StringArrayVar(&opts.inactive, "inactive", nil, "drop an item from the split")
	cmd.Flags().StringArrayVar(&opts.prices, "price", nil, `correct an item price, "item=amount"`)
	cmd.Flags().BoolVar(&opts.recompute, "recompute", true, "recompute shares after price corrections")

	return cmd
}

func runReceipt(cmd *cobra.Command, a *app, path string, opts receiptOptions) error {
	out := cmd.OutOrStdout()
	exp := a.cfg.Currency.Exponent

	scan, err := ocr.DefaultRegistry().ParseFile(path, opts.format, exp)
	if err != nil {
		return err
	}
	if sum, ok := ocr.Reconcile(scan); !ok {
		a.logger.Warn("receipt total does not match its items")
		fmt.Fprintf(out, "Warning: receipt total %s, items add up to %s\n", a.money(scan.TotalAmount), a.money(sum))
	}

	roster, err := parseRoster(opts.participants)
	if err != nil {
		return err
	}
	items, err := receipt.NewFromScan(scan, roster, a.picker())
	if err != nil {
		return err
	}

	if err := applyReceiptEdits(items, opts, exp); err != nil {
		return err
	}
	writeItems(out, a, items)

	if items.Stale() {
		fmt.Fprintf(out, "Prices changed; shares below still reflect %s until recomputed\n", a.money(items.Totals().Grand))
	}

	store, closeBank, err := a.openBank()
	if err != nil {
		return err
	}
	defer closeBank()

	h, err := opts.header(cmd, a, store, roster)
	if err != nil {
		return err
	}
	req, err := settlement.FromReceipt(h, items)
	if err != nil {
		return err
	}
	return opts.finish(cmd, a, store, req, roster)
}

// applyReceiptEdits applies participant toggles and item deactivations, then
// recomputes, then applies price corrections.
func applyReceiptEdits(items *receipt.Store, opts receiptOptions, exponent int32) error {
	for _, ex := range opts.exclude {
		itemStr, memberStr, ok := strings.Cut(ex, ":")
		if !ok {
			return fmt.Errorf("invalid --exclude %q, want item:member", ex)
		}
		itemID, err := strconv.ParseInt(itemStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --exclude %q: %w", ex, err)
		}
		memberID, err := strconv.ParseInt(memberStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --exclude %q: %w", ex, err)
		}
		if err := items.ToggleParticipant(itemID, memberID); err != nil {
			return err
		}
	}
	for _, s := range opts.inactive {
		itemID, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --inactive %q: %w", s, err)
		}
		if err := items.SetItemActive(itemID, false); err != nil {
			return err
		}
	}
	items.RecomputeTotals()

	for _, p := range opts.prices {
		itemStr, amountStr, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid --price %q, want item=amount", p)
		}
		itemID, err := strconv.ParseInt(itemStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --price %q: %w", p, err)
		}
		amount, err := model.ParseAmount(amountStr, exponent)
		if err != nil {
			return fmt.Errorf("invalid --price %q: %w", p, err)
		}
		if err := items.EditItemPrice(itemID, amount); err != nil {
			return err
		}
	}
	if len(opts.prices) > 0 && opts.recompute {
		items.RecomputeTotals()
	}
	return nil
}

func writeItems(out io.Writer, a *app, items *receipt.Store) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tNAME\tPRICE\tMEMBERS")
	for _, it := range items.Items() {
		members := "-"
		if !it.Inactive() {
			ids := make([]string, 0, len(it.Assigned))
			for _, p := range it.ActiveParticipants() {
				ids = append(ids, strconv.FormatInt(p, 10))
			}
			members = strings.Join(ids, ",")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", it.ID, it.Name, a.money(it.TotalPrice), members)
	}
	tw.Flush()
}
