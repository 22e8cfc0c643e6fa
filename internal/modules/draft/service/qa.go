package service

import (
	"context"
	"fmt"
	"strings"

	"anoa.com/studentportfolio/internal/entity"
	student "anoa.com/studentportfolio/internal/modules/student/service"
	"anoa.com/studentportfolio/pkg/apperror"
)

// checkRequiredAnswers validates the draft against the questionnaire schema
// read once for this request. Embedded qa answers win; persisted answer rows
// are used only when the draft has no qa section.
func (s *draftService) checkRequiredAnswers(ctx context.Context, d *entity.Draft) error {
	schema, err := s.settings.GetStudentQASchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to load questionnaire: %w", err)
	}
	required := schema.Required()
	if len(required) == 0 {
		return nil
	}

	answers, err := student.EmbeddedAnswers(d.Data())
	if err != nil {
		return err
	}
	if answers == nil {
		rows, err := s.students.FindQAAnswers(ctx, d.StudentID)
		if err != nil {
			return fmt.Errorf("failed to load saved answers: %w", err)
		}
		answers = make(map[string]map[string]string)
		for _, r := range rows {
			if answers[r.Category] == nil {
				answers[r.Category] = make(map[string]string)
			}
			answers[r.Category][r.QuestionKey] = r.Answer
		}
	}

	var missing []apperror.MissingAnswer
	for _, q := range required {
		if strings.TrimSpace(answers[q.Category][q.QuestionKey]) == "" {
			missing = append(missing, q)
		}
	}
	if len(missing) > 0 {
		return &apperror.MissingRequiredAnswersError{Count: len(missing), Missing: missing}
	}
	return nil
}
