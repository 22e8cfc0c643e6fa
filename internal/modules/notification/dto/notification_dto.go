package dto

import (
	"time"

	"anoa.com/studentportfolio/internal/entity"
	commonDto "anoa.com/studentportfolio/pkg/dto"
)

type NotificationListResponse struct {
	Data []entity.Notification   `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

// MailEvent is the message written to the mail topic for each notification.
type MailEvent struct {
	To        string    `json:"to"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	RelatedID *string   `json:"related_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
