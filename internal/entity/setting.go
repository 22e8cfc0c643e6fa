package entity

import (
	"time"

	"gorm.io/datatypes"
)

const SettingStudentQA = "studentQA"

type Setting struct {
	Key       string         `gorm:"size:100;primaryKey" json:"key"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
