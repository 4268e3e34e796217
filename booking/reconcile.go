package booking

import (
	"context"
	"time"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Errored   int `json:"errored"`
}

// ReconcilePending re-verifies registrations that have been pending for
// longer than olderThan. A lost or never-delivered callback would otherwise
// leave them pending forever. Each registration goes through the same
// settlement as a callback, so running this concurrently with real
// callbacks is safe.
func (e *Engine) ReconcilePending(ctx context.Context, olderThan time.Duration) (ReconcileReport, error) {
	var report ReconcileReport

	regs, err := e.store.ListPendingRegistrations(ctx, e.now().Add(-olderThan))
	if err != nil {
		return report, err
	}

	for i := range regs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		reg := regs[i]
		res, err := e.settle(ctx, &reg)
		report.Checked++

		switch res.Outcome {
		case OutcomeSuccess:
			report.Confirmed++
		case OutcomeFailed:
			report.Failed++
		default:
			report.Errored++
		}
		if err != nil && !IsClientError(err) {
			e.log.Warn("reconcile: registration left pending",
				"registration_id", reg.ID, "reference", reg.PaymentReference, "error", err)
		}
	}

	if report.Checked > 0 {
		e.log.Info("reconciled pending registrations",
			"checked", report.Checked, "confirmed", report.Confirmed,
			"failed", report.Failed, "errored", report.Errored)
	}
	return report, nil
}
