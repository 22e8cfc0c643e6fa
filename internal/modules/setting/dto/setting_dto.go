package dto

import (
	"sort"

	"anoa.com/studentportfolio/pkg/apperror"
)

type QAQuestion struct {
	Question string `json:"question"`
	Required bool   `json:"required"`
}

// QASchema is the studentQA setting: category -> question key -> question.
type QASchema map[string]map[string]QAQuestion

// Required lists every required question ordered by category then key.
func (s QASchema) Required() []apperror.MissingAnswer {
	var out []apperror.MissingAnswer
	for category, questions := range s {
		for key, q := range questions {
			if q.Required {
				out = append(out, apperror.MissingAnswer{Category: category, QuestionKey: key})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].QuestionKey < out[j].QuestionKey
	})
	return out
}
