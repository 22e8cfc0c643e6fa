package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/modules/setting/dto"
	"anoa.com/studentportfolio/internal/modules/setting/repository"
	"anoa.com/studentportfolio/pkg/apperror"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SettingService interface {
	Get(ctx context.Context, key string) (*entity.Setting, error)
	Put(ctx context.Context, key string, value json.RawMessage) (*entity.Setting, error)
	// GetStudentQASchema reads the questionnaire schema from storage on every
	// call. Staff may change required-ness at any time.
	GetStudentQASchema(ctx context.Context) (dto.QASchema, error)
}

type settingService struct {
	repo repository.SettingRepository
}

func NewSettingService(repo repository.SettingRepository) SettingService {
	return &settingService{repo: repo}
}

func (s *settingService) Get(ctx context.Context, key string) (*entity.Setting, error) {
	setting, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("setting %s: %w", key, apperror.ErrNotFound)
		}
		return nil, err
	}
	return setting, nil
}

func (s *settingService) Put(ctx context.Context, key string, value json.RawMessage) (*entity.Setting, error) {
	if key == "" || !json.Valid(value) {
		return nil, fmt.Errorf("setting value must be valid JSON: %w", apperror.ErrInvalidInput)
	}
	if key == entity.SettingStudentQA {
		if _, err := ParseQASchema(value); err != nil {
			return nil, err
		}
	}

	setting := &entity.Setting{Key: key, Value: datatypes.JSON(value)}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, err
	}
	return setting, nil
}

func (s *settingService) GetStudentQASchema(ctx context.Context) (dto.QASchema, error) {
	setting, err := s.repo.FindByKey(ctx, entity.SettingStudentQA)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QASchema{}, nil
		}
		return nil, err
	}
	return ParseQASchema(setting.Value)
}

func ParseQASchema(raw []byte) (dto.QASchema, error) {
	schema := dto.QASchema{}
	if len(raw) == 0 || string(raw) == "null" {
		return schema, nil
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("studentQA schema is malformed: %v: %w", err, apperror.ErrInvalidInput)
	}
	return schema, nil
}
