package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Student is the live profile shown to recruiters once Visibility is set.
// StudentID is the business identifier kept stable across HR imports.
type Student struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID        string         `gorm:"size:50;uniqueIndex;not null" json:"student_id"`
	UserID           *uuid.UUID     `gorm:"type:uuid;uniqueIndex" json:"user_id,omitempty"`
	FullName         string         `gorm:"size:100;not null" json:"full_name"`
	SelfIntroduction *string        `gorm:"type:text" json:"self_introduction"`
	Hobbies          *string        `gorm:"type:text" json:"hobbies"`
	SpecialSkills    *string        `gorm:"type:text" json:"special_skills"`
	OtherInformation *string        `gorm:"type:text" json:"other_information"`
	Gallery          datatypes.JSON `gorm:"type:jsonb" json:"gallery"`
	Skills           datatypes.JSON `gorm:"type:jsonb" json:"skills"`
	ITSkills         datatypes.JSON `gorm:"column:it_skills;type:jsonb" json:"it_skills"`
	Deliverables     datatypes.JSON `gorm:"type:jsonb" json:"deliverables"`
	Visibility       bool           `gorm:"not null;default:false" json:"visibility"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Student) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID, err = uuid.NewV7()
	}
	return
}

// QAAnswer is a persisted answer to one questionnaire item.
type QAAnswer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StudentID   string    `gorm:"size:50;not null;uniqueIndex:idx_qa_answers_unique,priority:1" json:"student_id"`
	Category    string    `gorm:"size:100;not null;uniqueIndex:idx_qa_answers_unique,priority:2" json:"category"`
	QuestionKey string    `gorm:"size:100;not null;uniqueIndex:idx_qa_answers_unique,priority:3" json:"question_key"`
	Answer      string    `gorm:"type:text" json:"answer"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QAAnswer) TableName() string {
	return "qa_answers"
}
