package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/pkg/apperror"
	"gorm.io/datatypes"
)

// QAField is the profile_data key holding embedded questionnaire answers,
// shaped as {category: {question_key: answer}}.
const QAField = "qa"

type fieldKind int

const (
	kindText fieldKind = iota
	kindJSON
)

type profileField struct {
	column string
	kind   fieldKind
}

// editableFields maps profile_data keys to live profile columns. Keys not
// listed here are kept in the draft document but never merged.
var editableFields = map[string]profileField{
	"self_introduction": {column: "self_introduction", kind: kindText},
	"hobbies":           {column: "hobbies", kind: kindText},
	"special_skills":    {column: "special_skills", kind: kindText},
	"other_information": {column: "other_information", kind: kindText},
	"gallery":           {column: "gallery", kind: kindJSON},
	"skills":            {column: "skills", kind: kindJSON},
	"it_skills":         {column: "it_skills", kind: kindJSON},
	"deliverables":      {column: "deliverables", kind: kindJSON},
}

// ValidateProfileData checks that mergeable keys carry values of the right
// shape, so an approved draft can always be applied.
func ValidateProfileData(data map[string]any) error {
	for key, value := range data {
		if key == QAField {
			if _, err := EmbeddedAnswers(data); err != nil {
				return err
			}
			continue
		}
		field, ok := editableFields[key]
		if !ok || value == nil {
			continue
		}
		if field.kind == kindText {
			if _, ok := value.(string); !ok {
				return fmt.Errorf("%s must be a string: %w", key, apperror.ErrInvalidInput)
			}
		}
		if key == "deliverables" {
			if _, ok := value.([]any); !ok {
				return fmt.Errorf("deliverables must be an array: %w", apperror.ErrInvalidInput)
			}
		}
	}
	return nil
}

// BuildProfileUpdates converts a draft document into column updates for the
// live profile. Only keys present in data are touched.
func BuildProfileUpdates(data map[string]any) (map[string]any, error) {
	updates := make(map[string]any)
	for key, value := range data {
		field, ok := editableFields[key]
		if !ok {
			continue
		}

		if value == nil {
			updates[field.column] = nil
			continue
		}

		switch field.kind {
		case kindText:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a string: %w", key, apperror.ErrInvalidInput)
			}
			updates[field.column] = s
		case kindJSON:
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", key, err)
			}
			updates[field.column] = datatypes.JSON(raw)
		}
	}
	return updates, nil
}

// Snapshot renders the live profile as a draft document. It is the baseline
// for a draft created implicitly by a deliverable edit.
func Snapshot(s *entity.Student) map[string]any {
	doc := map[string]any{
		"self_introduction": textValue(s.SelfIntroduction),
		"hobbies":           textValue(s.Hobbies),
		"special_skills":    textValue(s.SpecialSkills),
		"other_information": textValue(s.OtherInformation),
		"gallery":           jsonValue(s.Gallery),
		"skills":            jsonValue(s.Skills),
		"it_skills":         jsonValue(s.ITSkills),
		"deliverables":      jsonValue(s.Deliverables),
	}
	if doc["deliverables"] == nil {
		doc["deliverables"] = []any{}
	}
	return doc
}

// EmbeddedAnswers reads the qa section of a draft document. A missing or
// null section returns nil without error.
func EmbeddedAnswers(data map[string]any) (map[string]map[string]string, error) {
	raw, ok := data[QAField]
	if !ok || raw == nil {
		return nil, nil
	}
	categories, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("qa must be an object: %w", apperror.ErrInvalidInput)
	}

	out := make(map[string]map[string]string, len(categories))
	for category, v := range categories {
		questions, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("qa.%s must be an object: %w", category, apperror.ErrInvalidInput)
		}
		answers := make(map[string]string, len(questions))
		for key, a := range questions {
			switch t := a.(type) {
			case nil:
				answers[key] = ""
			case string:
				answers[key] = t
			default:
				return nil, fmt.Errorf("qa.%s.%s must be a string: %w", category, key, apperror.ErrInvalidInput)
			}
		}
		out[category] = answers
	}
	return out, nil
}

func answerRows(studentID string, answers map[string]map[string]string) []entity.QAAnswer {
	var rows []entity.QAAnswer
	for category, questions := range answers {
		for key, answer := range questions {
			rows = append(rows, entity.QAAnswer{
				StudentID:   studentID,
				Category:    category,
				QuestionKey: key,
				Answer:      strings.TrimSpace(answer),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].QuestionKey < rows[j].QuestionKey
	})
	return rows
}

func textValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func jsonValue(raw datatypes.JSON) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
