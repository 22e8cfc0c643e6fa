package service

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/studentportfolio/internal/modules/student/repository"
	"anoa.com/studentportfolio/pkg/apperror"
	"gorm.io/gorm"
)

// ProfileMerger copies approved draft data onto the live profile.
type ProfileMerger interface {
	// Apply runs on the caller's transaction when ctx carries one.
	Apply(ctx context.Context, studentID string, profileData map[string]any) error
}

type profileMerger struct {
	repo repository.StudentRepository
}

func NewProfileMerger(repo repository.StudentRepository) ProfileMerger {
	return &profileMerger{repo: repo}
}

func (m *profileMerger) Apply(ctx context.Context, studentID string, profileData map[string]any) error {
	updates, err := BuildProfileUpdates(profileData)
	if err != nil {
		return err
	}
	answers, err := EmbeddedAnswers(profileData)
	if err != nil {
		return err
	}

	updates["visibility"] = true

	if err := m.repo.Updates(ctx, studentID, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("student %s: %w", studentID, apperror.ErrNotFound)
		}
		return fmt.Errorf("failed to merge profile: %w", err)
	}

	if err := m.repo.UpsertQAAnswers(ctx, answerRows(studentID, answers)); err != nil {
		return fmt.Errorf("failed to save qa answers: %w", err)
	}
	return nil
}
