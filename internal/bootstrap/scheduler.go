package bootstrap

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// StartMaintenance runs jobs on one cron schedule until the returned cron
// is stopped.
func StartMaintenance(schedule string, jobs ...func()) (*cron.Cron, error) {
	c := cron.New()
	for _, job := range jobs {
		if _, err := c.AddFunc(schedule, job); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", schedule, err)
		}
	}
	c.Start()
	return c, nil
}
