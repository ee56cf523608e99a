package commands

import (
	"context"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/order"
)

// Reconcile runs one pass over orders and specialty records and logs the report.
func Reconcile(ctx context.Context, cfg *apt.Config, logger apt.Logger) (order.Report, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return order.Report{}, err
	}
	defer store.Stop(context.WithoutCancel(ctx))

	report, err := order.NewReconciler(store, logger).Run(ctx)
	logger.Info("Reconcile pass finished",
		"checked", report.Checked,
		"created", report.Created,
		"healed", report.Healed,
		"stray", len(report.Stray),
	)
	return report, err
}
