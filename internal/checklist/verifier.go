package checklist

import (
	"context"
	"time"

	"github.com/loki-swarm/core/internal/swarmio"
)

// Verify grades every item in cl, always completing (checks convert
// timeouts and external failures into pending rather than propagating an
// error), and returns the updated checklist plus a compact summary.
func (v *Verifier) Verify(ctx context.Context, cl Checklist, now time.Time) (Checklist, Summary) {
	updated := Checklist{Items: make([]Item, len(cl.Items))}
	summary := Summary{RunAt: now}

	for i, item := range cl.Items {
		outcomes := make([]CheckOutcome, len(item.Verification))
		for j, chk := range item.Verification {
			outcomes[j] = v.RunCheck(ctx, chk)
		}
		status := itemStatus(outcomes)

		graded := item
		graded.Status = status
		if status == StatusVerified {
			t := now
			graded.VerifiedAt = &t
		}
		updated.Items[i] = graded

		summary.Results = append(summary.Results, ItemResult{
			ItemID: item.ID,
			Status: status,
			Checks: outcomes,
		})
	}

	return updated, summary
}

// AllVerified reports whether every item in cl has converged to verified —
// the condition the Orchestrator checks to emit session_complete.
func AllVerified(cl Checklist) bool {
	if len(cl.Items) == 0 {
		return false
	}
	for _, item := range cl.Items {
		if item.Status != StatusVerified {
			return false
		}
	}
	return true
}

// LoadChecklist reads the machine-owned checklist.json, treating a missing
// file as an empty checklist rather than an error.
func LoadChecklist(path string) (Checklist, error) {
	var cl Checklist
	ok, err := swarmio.ReadJSON(path, &cl)
	if err != nil {
		return Checklist{}, err
	}
	if !ok {
		return Checklist{Items: nil}, nil
	}
	return cl, nil
}

// SaveResults atomically persists both the updated checklist and the
// verification-results summary; the verifier itself never fails the
// caller's run, so persistence errors here are the only errors returned.
func SaveResults(checklistPath, resultsPath string, cl Checklist, summary Summary) error {
	if err := swarmio.WithExclusiveLock(checklistPath, func() error {
		return swarmio.AtomicWriteJSON(checklistPath, cl)
	}); err != nil {
		return err
	}
	return swarmio.WithExclusiveLock(resultsPath, func() error {
		return swarmio.AtomicWriteJSON(resultsPath, summary)
	})
}
