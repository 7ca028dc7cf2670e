package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

const alertTimeout = 10 * time.Second

// alert sends message when a notifier is configured. Delivery failures are only logged.
func alert(ctx context.Context, n ports.Notifier, logger *slog.Logger, message string) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := n.Notify(ctx, message); err != nil {
		logger.Warn("alert not delivered", "error", err)
	}
}

func sweepSummary(report domain.SweepReport) string {
	totals := report.Totals()
	msg := fmt.Sprintf("Scrape sweep %s: %d sources, %d failed, %d links checked, %d classified, %d new wins queued for review.",
		report.RunID, len(report.Results), report.Failed(), totals.Checked, totals.Classified, totals.Submitted)
	for _, res := range report.Results {
		if res.Status == domain.SourceError {
			msg += fmt.Sprintf("\n- source %d (%s): %s", res.SourceID, res.URL, res.Error)
		}
	}
	return msg
}
