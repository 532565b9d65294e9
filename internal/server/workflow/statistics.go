package workflow

import (
	"context"

	"gitlab.com/grcflow/grcflow/common/cache"
	"gitlab.com/grcflow/grcflow/model"
)

// GetStatistics aggregates the tenant's instance population into counters and
// an average completion time.  The aggregate is served from the statistics
// cache; mutations invalidate it, so a cached value is at most
// StatisticsCacheTTL old and usually much fresher.
func (o *Operations) GetStatistics(ctx context.Context, tenantId string) (*model.TenantStatistics, error) {
	stats, err := cache.Cacheable(statsCacheKey(tenantId), func() (*model.TenantStatistics, error) {
		return o.computeStatistics(ctx, tenantId)
	}, o.statsCache)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return stats, nil
}

func (o *Operations) computeStatistics(ctx context.Context, tenantId string) (*model.TenantStatistics, error) {
	instances, err := o.ListInstances(ctx, tenantId)
	if err != nil {
		return nil, err
	}
	stats := &model.TenantStatistics{TenantId: tenantId}
	var completionHours float64
	var measured int
	for i := range instances {
		stats.TotalInstances++
		switch instances[i].Status {
		case model.InstanceStatusPending:
			stats.PendingInstances++
		case model.InstanceStatusInProgress, model.InstanceStatusInApproval:
			stats.ActiveInstances++
		case model.InstanceStatusCompleted:
			stats.CompletedInstances++
		case model.InstanceStatusRejected:
			stats.RejectedInstances++
		}
		if instances[i].CompletedAt != nil {
			completionHours += instances[i].CompletedAt.Sub(instances[i].StartedAt).Hours()
			measured++
		}
	}
	if measured > 0 {
		stats.AverageCompletionHours = completionHours / float64(measured)
	}
	return stats, nil
}
