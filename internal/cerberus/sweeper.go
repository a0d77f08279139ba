package cerberus

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/Wikid82/revalidator/internal/logger"
)

// DefaultSweepSchedule runs the rate-limit sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// StartSweeper schedules Sweep on a cron spec. The returned function stops
// the schedule and waits for a running sweep to finish.
func (g *Gate) StartSweeper(spec string) (func(), error) {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := g.Sweep(); n > 0 {
			logger.Component("cerberus").WithField("removed", n).Debug("swept idle rate-limit records")
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule rate-limit sweep: %w", err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
