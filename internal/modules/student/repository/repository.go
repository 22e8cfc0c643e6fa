package repository

import (
	"context"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StudentRepository interface {
	FindByStudentID(ctx context.Context, studentID string) (*entity.Student, error)
	Updates(ctx context.Context, studentID string, updates map[string]any) error
	SetVisibility(ctx context.Context, studentID string, visible bool) error
	FindQAAnswers(ctx context.Context, studentID string) ([]entity.QAAnswer, error)
	UpsertQAAnswers(ctx context.Context, answers []entity.QAAnswer) error
}

type studentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) FindByStudentID(ctx context.Context, studentID string) (*entity.Student, error) {
	var student entity.Student
	if err := database.Conn(ctx, r.db).Where("student_id = ?", studentID).First(&student).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) Updates(ctx context.Context, studentID string, updates map[string]any) error {
	res := database.Conn(ctx, r.db).Model(&entity.Student{}).Where("student_id = ?", studentID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *studentRepository) SetVisibility(ctx context.Context, studentID string, visible bool) error {
	res := database.Conn(ctx, r.db).Model(&entity.Student{}).
		Where("student_id = ?", studentID).
		Update("visibility", visible)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *studentRepository) FindQAAnswers(ctx context.Context, studentID string) ([]entity.QAAnswer, error) {
	var answers []entity.QAAnswer
	err := database.Conn(ctx, r.db).
		Where("student_id = ?", studentID).
		Order("category, question_key").
		Find(&answers).Error
	return answers, err
}

func (r *studentRepository) UpsertQAAnswers(ctx context.Context, answers []entity.QAAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return database.Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "category"}, {Name: "question_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"answer", "updated_at"}),
	}).Create(&answers).Error
}
