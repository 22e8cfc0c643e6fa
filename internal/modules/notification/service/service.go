package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/modules/notification/dto"
	notifRepo "anoa.com/studentportfolio/internal/modules/notification/repository"
	"anoa.com/studentportfolio/pkg/apperror"
	commonDto "anoa.com/studentportfolio/pkg/dto"
	"anoa.com/studentportfolio/pkg/metrics"
	"anoa.com/studentportfolio/pkg/queue"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Notifier is the sink the draft workflow writes to.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, role, notifType, message string, relatedID *string) error
	NotifyRole(ctx context.Context, role, notifType, message string, relatedID *string) error
}

type NotificationService interface {
	Notifier
	GetNotifications(ctx context.Context, userID uuid.UUID, q commonDto.PaginationQuery) (*dto.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// RecipientFinder resolves notification recipients.
type RecipientFinder interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByRoleName(ctx context.Context, role string) ([]entity.User, error)
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	users       RecipientFinder
	redisClient *redis.Client
	mail        queue.Publisher
}

func NewNotificationService(repo notifRepo.NotificationRepository, users RecipientFinder, redisClient *redis.Client, mail queue.Publisher) NotificationService {
	return &notificationService{
		repo:        repo,
		users:       users,
		redisClient: redisClient,
		mail:        mail,
	}
}

func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", userID.String())
}

func (s *notificationService) Notify(ctx context.Context, userID uuid.UUID, role, notifType, message string, relatedID *string) error {
	n := &entity.Notification{
		UserID:    userID,
		Role:      role,
		Type:      notifType,
		Message:   message,
		RelatedID: relatedID,
	}
	if err := s.deliver(ctx, n); err != nil {
		return err
	}

	if s.mail != nil {
		user, err := s.users.FindByID(ctx, userID.String())
		if err != nil {
			log.Printf("[Notification] recipient %s not found for mail event: %v", userID, err)
			return nil
		}
		s.publishMail(ctx, user, n)
	}
	return nil
}

// NotifyRole fans out to every user holding role. Delivery continues past
// individual failures; the joined error reports all of them.
func (s *notificationService) NotifyRole(ctx context.Context, role, notifType, message string, relatedID *string) error {
	users, err := s.users.FindByRoleName(ctx, role)
	if err != nil {
		return fmt.Errorf("failed to load %s recipients: %w", role, err)
	}

	var errs []error
	for i := range users {
		n := &entity.Notification{
			UserID:    users[i].ID,
			Role:      role,
			Type:      notifType,
			Message:   message,
			RelatedID: relatedID,
		}
		if err := s.deliver(ctx, n); err != nil {
			errs = append(errs, err)
			continue
		}
		s.publishMail(ctx, &users[i], n)
	}
	return errors.Join(errs...)
}

func (s *notificationService) deliver(ctx context.Context, n *entity.Notification) error {
	// 1. Save to DB
	if err := s.repo.Create(ctx, n); err != nil {
		metrics.NotificationFailures.Inc()
		return fmt.Errorf("failed to save notification: %w", err)
	}

	// 2. Publish to Redis if Redis is available
	if s.redisClient != nil {
		payload, err := json.Marshal(n)
		if err == nil {
			if err := s.redisClient.Publish(ctx, UserChannel(n.UserID), payload).Err(); err != nil {
				log.Printf("[Notification] redis publish failed: %v", err)
			}
		}
	}
	return nil
}

func (s *notificationService) publishMail(ctx context.Context, user *entity.User, n *entity.Notification) {
	if s.mail == nil || user == nil || user.Email == "" {
		return
	}

	event := dto.MailEvent{
		To:        user.Email,
		Name:      user.DisplayName(),
		Type:      n.Type,
		Message:   n.Message,
		RelatedID: n.RelatedID,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.mail.PublishMessage(ctx, []byte(user.ID.String()), payload); err != nil {
		metrics.NotificationFailures.Inc()
		log.Printf("[Notification] mail event for %s failed: %v", user.ID, err)
	}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, q commonDto.PaginationQuery) (*dto.NotificationListResponse, error) {
	q.Normalize()
	items, total, err := s.repo.GetByUserID(ctx, userID, q.Limit, q.Offset())
	if err != nil {
		return nil, err
	}
	return &dto.NotificationListResponse{
		Data: items,
		Meta: commonDto.NewPaginationMeta(q.Page, q.Limit, total),
	}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("notification %s: %w", id, apperror.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}
