package deviceflow

import (
	"context"
	"fmt"
)

// Cleanup removes records past their terminal boundary: unauthorized records
// past expiry, and authorized records older than the retention window.
// Deletes run in bounded batches so the store never holds long locks, and the
// pass is idempotent; re-invoking it never double-counts.
//
// Cleanup owns no schedule. An external scheduler invokes it at its own
// cadence, and it is safe to run concurrently with live polls and
// verifications.
func (f *Flow) Cleanup(ctx context.Context) (CleanupStats, error) {
	var stats CleanupStats
	now := f.now()

	for {
		n, err := f.store.DeleteExpiredBefore(ctx, now, f.cleanupBatchSize)
		if err != nil {
			return stats, fmt.Errorf("deleting expired authorizations: %w", err)
		}
		stats.Expired += n
		if n < f.cleanupBatchSize {
			break
		}
	}

	cutoff := now.Add(-f.authorizedRetention)
	for {
		n, err := f.store.DeleteAuthorizedBefore(ctx, cutoff, f.cleanupBatchSize)
		if err != nil {
			return stats, fmt.Errorf("deleting retained authorizations: %w", err)
		}
		stats.RetainedAuthorized += n
		if n < f.cleanupBatchSize {
			break
		}
	}

	if stats.Expired > 0 || stats.RetainedAuthorized > 0 {
		f.logger.WithFields(map[string]interface{}{
			"expired":             stats.Expired,
			"retained_authorized": stats.RetainedAuthorized,
		}).Info("cleanup pass complete")
	}

	return stats, nil
}
