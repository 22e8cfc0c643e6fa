package dto

import (
	"time"

	"anoa.com/studentportfolio/internal/entity"
	"gorm.io/datatypes"
)

type ProfileResponse struct {
	StudentID        string                       `json:"student_id"`
	FullName         string                       `json:"full_name"`
	SelfIntroduction *string                      `json:"self_introduction"`
	Hobbies          *string                      `json:"hobbies"`
	SpecialSkills    *string                      `json:"special_skills"`
	OtherInformation *string                      `json:"other_information"`
	Gallery          datatypes.JSON               `json:"gallery"`
	Skills           datatypes.JSON               `json:"skills"`
	ITSkills         datatypes.JSON               `json:"it_skills"`
	Deliverables     datatypes.JSON               `json:"deliverables"`
	Visibility       bool                         `json:"visibility"`
	QA               map[string]map[string]string `json:"qa"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func NewProfileResponse(s *entity.Student, answers []entity.QAAnswer) *ProfileResponse {
	qa := make(map[string]map[string]string)
	for _, a := range answers {
		if qa[a.Category] == nil {
			qa[a.Category] = make(map[string]string)
		}
		qa[a.Category][a.QuestionKey] = a.Answer
	}

	return &ProfileResponse{
		StudentID:        s.StudentID,
		FullName:         s.FullName,
		SelfIntroduction: s.SelfIntroduction,
		Hobbies:          s.Hobbies,
		SpecialSkills:    s.SpecialSkills,
		OtherInformation: s.OtherInformation,
		Gallery:          s.Gallery,
		Skills:           s.Skills,
		ITSkills:         s.ITSkills,
		Deliverables:     s.Deliverables,
		Visibility:       s.Visibility,
		QA:               qa,
		UpdatedAt:        s.UpdatedAt,
	}
}
