package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// StartPurger runs PurgeIdle on schedule until the returned cron is stopped.
func StartPurger(m *Manager, schedule string, maxIdle time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		m.PurgeIdle(maxIdle)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	c.Start()

	sessionLogger.Info().Str("schedule", schedule).Dur("max_idle", maxIdle).Msg("Session purger started")
	return c, nil
}
