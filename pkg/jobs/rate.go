package jobs

import (
	"context"

	"github.com/acme-corp/module-registry-api/pkg/registry/services"
	"github.com/acme-corp/module-registry-api/pkg/tools"
	"github.com/robfig/cron/v3"
)

// ScheduleDailyRating sets up a cron job that re-rates every
// reference-ingested package once a day.
func ScheduleDailyRating(ctx context.Context, svc *services.PackageService) *cron.Cron {
	c := cron.New()
	_, _ = c.AddFunc("@daily", func() {
		tools.Dispatch(context.Background(), "rate_all", func(ctx context.Context) error {
			return svc.RateAllSources(ctx)
		})
	})
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c
}
