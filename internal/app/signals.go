package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Signals prints the most recent persisted signal events and the orders
// they sized. Requires the Postgres store; the file-state fallback keeps
// no history.
func (a *App) Signals(ctx context.Context, opts SignalsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; signal history needs database.dsn")
	}
	if closeStore != nil {
		defer closeStore()
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	signals, err := store.ListRecentSignals(ctx, limit)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		fmt.Fprintln(os.Stdout, "no signals recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tAction\tFrom\tTo\tZ\tBeta\tReason")
	for _, sig := range signals {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sig.Ts.UTC().Format(time.RFC3339),
			sig.Pair,
			sig.Action,
			sig.FromPosition,
			sig.ToPosition,
			formatDecimal(sig.Z, 2),
			formatDecimal(sig.Beta, 3),
			sanitizeInline(sig.Reason),
		)
	}
	writer.Flush()

	if !opts.Orders {
		return nil
	}

	orders, err := store.ListRecentOrders(ctx, limit)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(os.Stdout, "\nno sized orders recorded")
		return nil
	}

	fmt.Fprintln(os.Stdout, "\nSized orders:")
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tAction\tLeg Y USD\tLeg X USD\tScale\tEst Cost\tSkipped")
	for _, ord := range orders {
		skipped := ""
		if ord.Skipped {
			skipped = "yes"
			if ord.SkipReason != nil {
				skipped = sanitizeInline(*ord.SkipReason)
			}
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ord.Ts.UTC().Format(time.RFC3339),
			ord.Pair,
			ord.Action,
			formatDecimal(ord.LegYNotional, 2),
			formatDecimal(ord.LegXNotional, 2),
			formatDecimal(ord.Scale, 2),
			formatDecimal(ord.EstCostUSD, 2),
			skipped,
		)
	}
	writer.Flush()
	return nil
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
