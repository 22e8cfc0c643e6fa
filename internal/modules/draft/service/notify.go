package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"anoa.com/studentportfolio/internal/entity"
	"github.com/google/uuid"
)

// Notifications run after commit and never fail the transition.

func (s *draftService) notifySubmitted(ctx context.Context, d *entity.Draft, staffIDHint *uuid.UUID) {
	name := d.StudentID
	if profile, err := s.students.FindByStudentID(ctx, d.StudentID); err == nil && profile.FullName != "" {
		name = fmt.Sprintf("%s (%s)", profile.FullName, d.StudentID)
	}
	message := fmt.Sprintf("%s submitted their portfolio for review (submission #%d).", name, d.SubmitCount)
	related := d.ID.String()

	if staffIDHint != nil {
		staff, err := s.users.FindByID(ctx, staffIDHint.String())
		if err == nil && entity.ActorFromUser(staff).IsStaff() {
			s.report(s.notifier.Notify(ctx, staff.ID, staff.Role.Name, entity.NotificationDraftSubmitted, message, &related))
			return
		}
		log.Printf("[Draft] staff hint %s is not a staff member, notifying all staff", staffIDHint)
	}

	s.report(s.notifier.NotifyRole(ctx, entity.RoleStaff, entity.NotificationDraftSubmitted, message, &related))
}

func (s *draftService) notifyReviewed(ctx context.Context, d *entity.Draft, reviewer entity.Actor) {
	reviewerName := "staff"
	if u, err := s.users.FindByID(ctx, reviewer.UserID.String()); err == nil {
		reviewerName = u.DisplayName()
	}
	related := d.ID.String()

	profile, err := s.students.FindByStudentID(ctx, d.StudentID)
	if err != nil {
		log.Printf("[Draft] cannot load student %s for notification: %v", d.StudentID, err)
		return
	}

	if profile.UserID != nil {
		notifType := entity.NotificationDraftReviewed
		if d.Status == entity.DraftStatusApproved {
			notifType = entity.NotificationDraftApproved
		}
		s.report(s.notifier.Notify(ctx, *profile.UserID, entity.RoleStudent, notifType, studentMessage(d, reviewerName), &related))
	} else {
		log.Printf("[Draft] student %s has no linked account, skip notification", d.StudentID)
	}

	if d.Status != entity.DraftStatusApproved {
		return
	}

	adminMessage := fmt.Sprintf("%s's portfolio (%s) was approved by %s and is now visible.", profile.FullName, d.StudentID, reviewerName)
	s.report(s.notifier.NotifyRole(ctx, entity.RoleAdmin, entity.NotificationDraftApproved, adminMessage, &related))

	if s.indexer != nil {
		if err := s.indexer.IndexStudent(profile); err != nil {
			log.Printf("[Draft] failed to index student %s: %v", d.StudentID, err)
		}
	}
}

// unindex drops a hidden profile from search until it is approved again.
func (s *draftService) unindex(studentID string) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.DeleteStudent(studentID); err != nil {
		log.Printf("[Draft] failed to remove student %s from index: %v", studentID, err)
	}
}

func studentMessage(d *entity.Draft, reviewerName string) string {
	if d.Status == entity.DraftStatusApproved {
		return fmt.Sprintf("Your portfolio was approved by %s and is now visible to recruiters.", reviewerName)
	}

	label := strings.ReplaceAll(string(d.Status), "_", " ")
	var b strings.Builder
	fmt.Fprintf(&b, "Your portfolio was marked %q by %s.", label, reviewerName)
	if d.Comments != nil {
		b.WriteString("\n\nComments:\n")
		b.WriteString(*d.Comments)
	}
	return b.String()
}

func (s *draftService) report(err error) {
	if err != nil {
		log.Printf("[Draft] notification failed: %v", err)
	}
}
