package scheduler

import "context"

// Job is a unit of background work run by the Scheduler.
type Job interface {
	// GetName identifies the job in logs.
	GetName() string

	// GetSchedule returns a cron spec such as "0 8 * * *". An empty string
	// registers the job for on-demand runs only.
	GetSchedule() string

	Execute(ctx context.Context) error
}
