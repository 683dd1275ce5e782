package gate

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"speaker-split/internal/app/capability"
	"speaker-split/internal/app/credits"
	"speaker-split/internal/app/relay"
)

// Gate is the only legitimate entry point for a capability-consuming
// request. It checks the credit ledger before opening a stream and deducts
// exactly one credit after a successful terminal event. Failed jobs never
// consume credit.
type Gate struct {
	credits *credits.Service
	relay   *relay.Relay
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a quota gate.
func New(creditsSvc *credits.Service, streamRelay *relay.Relay, logger *slog.Logger, metrics *Metrics) *Gate {
	return &Gate{
		credits: creditsSvc,
		relay:   streamRelay,
		logger:  logger,
		metrics: metrics,
	}
}

// Invoke runs one gated operation, forwarding the relay's events to w
// unchanged. When the pool is exhausted the stream carries a single terminal
// error event and the backend is never contacted.
//
// If the deduction fails after a successful job, the already-delivered
// outputs win: the failure is logged and counted, never surfaced as a job
// error.
func (g *Gate) Invoke(ctx context.Context, userID string, cap capability.Capability, req relay.Request, w io.Writer) relay.Outcome {
	ledger, err := g.credits.GetOrReset(ctx, userID)
	if err != nil {
		g.logger.Error("ledger load failed", "user_id", userID, "error", err)
		return g.relay.Terminate(ctx, req.JobID, cap, w,
			"Could not load your credit balance. Please try again.")
	}

	if !g.credits.HasBalance(ledger, cap) {
		g.metrics.QuotaRejections.WithLabelValues(string(cap)).Inc()
		g.logger.Info("quota exhausted", "user_id", userID, "capability", cap)
		return g.relay.Terminate(ctx, req.JobID, cap, w,
			fmt.Sprintf("You're out of %s credits for this month. Upgrade your plan or wait for the monthly reset.", cap))
	}

	outcome := g.relay.Run(ctx, cap, req, w)

	if outcome.Success {
		if _, err := g.credits.Deduct(ctx, userID, cap); err != nil {
			g.metrics.DeductionFailures.Inc()
			g.logger.Error("credit deduction failed after successful job",
				"user_id", userID,
				"capability", cap,
				"job_id", req.JobID,
				"error", err,
			)
		} else {
			g.metrics.Deductions.WithLabelValues(string(cap)).Inc()
		}
	}

	return outcome
}
