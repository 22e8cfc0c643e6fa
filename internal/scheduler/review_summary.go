package scheduler

import (
	"context"
	"fmt"
	"log"

	"anoa.com/studentportfolio/internal/entity"
)

// PendingCounter reports drafts waiting for a staff decision.
type PendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

// RoleNotifier broadcasts to every user holding a role.
type RoleNotifier interface {
	NotifyRole(ctx context.Context, role, notifType, message string, relatedID *string) error
}

// ReviewSummaryJob reminds staff of the review queue. Nothing is sent when the
// queue is empty.
type ReviewSummaryJob struct {
	drafts   PendingCounter
	notifier RoleNotifier
	schedule string
}

func NewReviewSummaryJob(drafts PendingCounter, notifier RoleNotifier, schedule string) *ReviewSummaryJob {
	return &ReviewSummaryJob{drafts: drafts, notifier: notifier, schedule: schedule}
}

func (j *ReviewSummaryJob) GetName() string { return "review-summary" }

func (j *ReviewSummaryJob) GetSchedule() string { return j.schedule }

func (j *ReviewSummaryJob) Execute(ctx context.Context) error {
	pending, err := j.drafts.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending drafts: %w", err)
	}
	if pending == 0 {
		log.Println("[Scheduler] review queue is empty")
		return nil
	}

	noun := "drafts are"
	if pending == 1 {
		noun = "draft is"
	}
	message := fmt.Sprintf("%d portfolio %s waiting for review.", pending, noun)
	return j.notifier.NotifyRole(ctx, entity.RoleStaff, entity.NotificationReviewSummary, message, nil)
}
