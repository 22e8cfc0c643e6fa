package service

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/internal/modules/draft/dto"
	student "anoa.com/studentportfolio/internal/modules/student/service"
	"anoa.com/studentportfolio/pkg/apperror"
	commonDto "anoa.com/studentportfolio/pkg/dto"
	"github.com/google/uuid"
)

const deliverablesField = "deliverables"

func (s *draftService) AddDeliverable(ctx context.Context, studentID string, actor entity.Actor, input dto.DeliverableInput, image *commonDto.ImageFile) (*entity.Draft, error) {
	if err := requireOwner(actor, studentID); err != nil {
		return nil, err
	}

	imageURL, err := s.uploadImage(ctx, studentID, image)
	if err != nil {
		return nil, err
	}

	res, err := s.mutate(ctx, studentID, mutation{
		op:              "deliverable_add",
		version:         input.Version,
		always:          []string{deliverablesField},
		seedFromProfile: true,
		build: func(current map[string]any) (map[string]any, error) {
			items, err := deliverablesOf(current)
			if err != nil {
				return nil, err
			}
			item := map[string]any{
				"id":          uuid.NewString(),
				"title":       input.Title,
				"link":        input.Link,
				"description": input.Description,
				"image_url":   imageURL,
				"created_at":  time.Now().UTC().Format(time.RFC3339),
			}
			return withDeliverables(current, append(items, item)), nil
		},
	})
	if err != nil {
		s.deleteImage(ctx, imageURL)
		return nil, err
	}
	return res.draft, nil
}

func (s *draftService) UpdateDeliverable(ctx context.Context, studentID string, actor entity.Actor, deliverableID string, input dto.DeliverableInput, image *commonDto.ImageFile) (*entity.Draft, error) {
	if err := requireOwner(actor, studentID); err != nil {
		return nil, err
	}

	imageURL, err := s.uploadImage(ctx, studentID, image)
	if err != nil {
		return nil, err
	}

	var replaced string
	res, err := s.mutate(ctx, studentID, mutation{
		op:              "deliverable_update",
		version:         input.Version,
		always:          []string{deliverablesField},
		seedFromProfile: true,
		build: func(current map[string]any) (map[string]any, error) {
			replaced = ""
			items, err := deliverablesOf(current)
			if err != nil {
				return nil, err
			}
			idx := indexOfDeliverable(items, deliverableID)
			if idx < 0 {
				return nil, fmt.Errorf("deliverable %s: %w", deliverableID, apperror.ErrNotFound)
			}

			old := items[idx].(map[string]any)
			item := copyDoc(old)
			item["title"] = input.Title
			item["link"] = input.Link
			item["description"] = input.Description
			oldURL, _ := old["image_url"].(string)
			switch {
			case imageURL != "":
				item["image_url"] = imageURL
				replaced = oldURL
			case input.RemoveImage:
				item["image_url"] = ""
				replaced = oldURL
			}
			items[idx] = item
			return withDeliverables(current, items), nil
		},
	})
	if err != nil {
		s.deleteImage(ctx, imageURL)
		return nil, err
	}

	if replaced != "" && !s.liveProfileUses(ctx, studentID, replaced) {
		s.deleteImage(ctx, replaced)
	}
	return res.draft, nil
}

func (s *draftService) RemoveDeliverable(ctx context.Context, studentID string, actor entity.Actor, deliverableID string, version *int) (*entity.Draft, error) {
	if err := requireOwner(actor, studentID); err != nil {
		return nil, err
	}

	var removedURL string
	res, err := s.mutate(ctx, studentID, mutation{
		op:              "deliverable_remove",
		version:         version,
		always:          []string{deliverablesField},
		seedFromProfile: true,
		build: func(current map[string]any) (map[string]any, error) {
			items, err := deliverablesOf(current)
			if err != nil {
				return nil, err
			}
			idx := indexOfDeliverable(items, deliverableID)
			if idx < 0 {
				return nil, fmt.Errorf("deliverable %s: %w", deliverableID, apperror.ErrNotFound)
			}
			removedURL, _ = items[idx].(map[string]any)["image_url"].(string)
			return withDeliverables(current, append(items[:idx], items[idx+1:]...)), nil
		},
	})
	if err != nil {
		return nil, err
	}

	if removedURL != "" && !s.liveProfileUses(ctx, studentID, removedURL) {
		s.deleteImage(ctx, removedURL)
	}
	return res.draft, nil
}

func (s *draftService) uploadImage(ctx context.Context, studentID string, image *commonDto.ImageFile) (string, error) {
	if image == nil {
		return "", nil
	}
	if s.images == nil {
		return "", apperror.New(http.StatusServiceUnavailable, "image storage is not configured", apperror.ErrInternal)
	}
	url, err := s.images.UploadImage(ctx, image.Reader, "deliverables/"+studentID, image.FileName)
	if err != nil {
		return "", fmt.Errorf("failed to upload deliverable image: %w", err)
	}
	return url, nil
}

func (s *draftService) deleteImage(ctx context.Context, url string) {
	if url == "" || s.images == nil {
		return
	}
	if err := s.images.DeleteImage(ctx, url); err != nil {
		log.Printf("[Draft] failed to delete image %s: %v", url, err)
	}
}

// liveProfileUses reports whether the approved profile still shows url. The
// image is kept when the profile cannot be read.
func (s *draftService) liveProfileUses(ctx context.Context, studentID, url string) bool {
	profile, err := s.students.FindByStudentID(ctx, studentID)
	if err != nil {
		return true
	}
	items, err := deliverablesOf(student.Snapshot(profile))
	if err != nil {
		return true
	}
	for _, it := range items {
		if m, ok := it.(map[string]any); ok && m["image_url"] == url {
			return true
		}
	}
	return false
}

// deliverablesOf returns a fresh slice so callers can modify it freely.
func deliverablesOf(doc map[string]any) ([]any, error) {
	raw, ok := doc[deliverablesField]
	if !ok || raw == nil {
		return []any{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("deliverables must be an array: %w", apperror.ErrInvalidInput)
	}
	out := make([]any, len(items))
	copy(out, items)
	return out, nil
}

func withDeliverables(doc map[string]any, items []any) map[string]any {
	out := copyDoc(doc)
	out[deliverablesField] = items
	return out
}

func indexOfDeliverable(items []any, id string) int {
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if itemID, _ := m["id"].(string); itemID == id {
			return i
		}
	}
	return -1
}
