package bootstrap

import (
	"errors"
	"log"

	"anoa.com/studentportfolio/internal/entity"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultStudentQA is the questionnaire installed on first start. Admins edit
// it through the settings endpoint afterwards.
const DefaultStudentQA = `{
  "career": {
    "goal": {"question": "What kind of work do you want to do after graduation?", "required": true},
    "reason": {"question": "Why do you want to work in Japan?", "required": true}
  },
  "personal": {
    "strength": {"question": "What is your greatest strength?", "required": false}
  }
}`

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Role{},
		&entity.User{},
		&entity.Student{},
		&entity.QAAnswer{},
		&entity.Draft{},
		&entity.DraftReview{},
		&entity.Setting{},
		&entity.Notification{},
	)
}

func SeedRoles(db *gorm.DB) error {
	defaultRoles := []entity.Role{
		{Name: entity.RoleAdmin, Description: "Super administrator"},
		{Name: entity.RoleStaff, Description: "Reviews student portfolios"},
		{Name: entity.RoleStudent, Description: "Owns a portfolio"},
		{Name: entity.RoleRecruiter, Description: "Browses approved portfolios"},
	}

	for _, role := range defaultRoles {
		var count int64
		if err := db.Model(&entity.Role{}).
			Where("name = ?", role.Name).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := db.Create(&role).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

// SeedSettings installs default settings without overwriting edited ones.
func SeedSettings(db *gorm.DB) error {
	setting := entity.Setting{
		Key:   entity.SettingStudentQA,
		Value: datatypes.JSON(DefaultStudentQA),
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error
}

func SeedAdminUser(db *gorm.DB) error {
	created, err := seedUser(db, entity.RoleAdmin, entity.User{
		Username: "admin",
		Email:    "admin@portfolio.local",
		FullName: "Administrator",
	}, "admin123")
	if err != nil {
		return err
	}
	if !created {
		log.Println("Admin user already exists, skipping seed")
		return nil
	}

	log.Println("✅ Admin user seeded successfully")
	log.Println("   Email: admin@portfolio.local")
	log.Println("   Password: admin123")
	return nil
}

// SeedDemoUsers creates one staff member and one student with an empty,
// hidden profile for local development.
func SeedDemoUsers(db *gorm.DB) error {
	if _, err := seedUser(db, entity.RoleStaff, entity.User{
		Username: "staff",
		Email:    "staff@portfolio.local",
		FullName: "Review Staff",
	}, "staff123"); err != nil {
		return err
	}

	created, err := seedUser(db, entity.RoleStudent, entity.User{
		Username: "student",
		Email:    "student@portfolio.local",
		FullName: "Demo Student",
	}, "student123")
	if err != nil || !created {
		return err
	}

	var user entity.User
	if err := db.Where("email = ?", "student@portfolio.local").First(&user).Error; err != nil {
		return err
	}

	student := entity.Student{
		StudentID: "S0001",
		UserID:    &user.ID,
		FullName:  user.FullName,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&student).Error; err != nil {
		return err
	}

	log.Println("✅ Demo staff and student seeded successfully")
	return nil
}

func seedUser(db *gorm.DB, roleName string, user entity.User, password string) (bool, error) {
	var role entity.Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, errors.New("role " + roleName + " is missing, run SeedRoles first")
		}
		return false, err
	}

	var count int64
	if err := db.Model(&entity.User{}).
		Where("email = ?", user.Email).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	user.PasswordHash = string(hashedPasswordBytes)
	user.RoleID = &role.ID
	if err := db.Create(&user).Error; err != nil {
		return false, err
	}
	return true, nil
}
