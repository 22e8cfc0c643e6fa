package service

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/modules/student/dto"
	"anoa.com/studentportfolio/internal/modules/student/repository"
	"anoa.com/studentportfolio/pkg/apperror"
	"gorm.io/gorm"
)

type StudentService interface {
	GetProfile(ctx context.Context, studentID string, viewer entity.Actor) (*dto.ProfileResponse, error)
	FindByStudentID(ctx context.Context, studentID string) (*entity.Student, error)
	SetVisibility(ctx context.Context, studentID string, visible bool) error
	FindQAAnswers(ctx context.Context, studentID string) ([]entity.QAAnswer, error)
}

type studentService struct {
	repo repository.StudentRepository
}

func NewStudentService(repo repository.StudentRepository) StudentService {
	return &studentService{repo: repo}
}

func (s *studentService) FindByStudentID(ctx context.Context, studentID string) (*entity.Student, error) {
	student, err := s.repo.FindByStudentID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("student %s: %w", studentID, apperror.ErrNotFound)
		}
		return nil, err
	}
	return student, nil
}

// GetProfile hides non-visible profiles from everyone except staff and the owner.
func (s *studentService) GetProfile(ctx context.Context, studentID string, viewer entity.Actor) (*dto.ProfileResponse, error) {
	student, err := s.FindByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	if !student.Visibility && !viewer.IsStaff() && viewer.StudentID != student.StudentID {
		return nil, fmt.Errorf("student %s: %w", studentID, apperror.ErrNotFound)
	}

	answers, err := s.repo.FindQAAnswers(ctx, studentID)
	if err != nil {
		return nil, err
	}

	return dto.NewProfileResponse(student, answers), nil
}

func (s *studentService) SetVisibility(ctx context.Context, studentID string, visible bool) error {
	if err := s.repo.SetVisibility(ctx, studentID, visible); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("student %s: %w", studentID, apperror.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *studentService) FindQAAnswers(ctx context.Context, studentID string) ([]entity.QAAnswer, error) {
	return s.repo.FindQAAnswers(ctx, studentID)
}
