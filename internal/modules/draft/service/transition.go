package service

import (
	"fmt"

	"anoa.com/studentportfolio/internal/entity"
	"anoa.com/studentportfolio/pkg/apperror"
)

type Event int

const (
	// EventEdit is any student change to profile_data, deliverables included.
	EventEdit Event = iota
	// EventSubmit is a student asking for review.
	EventSubmit
	// EventReview is a staff decision; the requested status carries the outcome.
	EventReview
)

func (e Event) String() string {
	switch e {
	case EventEdit:
		return "edit"
	case EventSubmit:
		return "submit"
	case EventReview:
		return "review"
	}
	return "unknown"
}

// Transition is the only place draft statuses change.
//
//	edit:   any        -> draft
//	submit: draft      -> submitted
//	review: submitted  -> checking
//	        submitted, checking -> approved | resubmission_required | disapproved
func Transition(current entity.DraftStatus, event Event, requested entity.DraftStatus) (entity.DraftStatus, error) {
	switch event {
	case EventEdit:
		return entity.DraftStatusDraft, nil

	case EventSubmit:
		switch current {
		case entity.DraftStatusDraft:
			return entity.DraftStatusSubmitted, nil
		case entity.DraftStatusSubmitted, entity.DraftStatusChecking:
			return "", apperror.ErrAlreadySubmitted
		default:
			return "", fmt.Errorf("draft is %s, edit it before submitting again: %w", current, apperror.ErrInvalidTransition)
		}

	case EventReview:
		switch requested {
		case entity.DraftStatusChecking:
			if current == entity.DraftStatusSubmitted {
				return requested, nil
			}
		case entity.DraftStatusApproved, entity.DraftStatusResubmissionRequired, entity.DraftStatusDisapproved:
			if current == entity.DraftStatusSubmitted || current == entity.DraftStatusChecking {
				return requested, nil
			}
		default:
			return "", fmt.Errorf("status %q cannot be set by staff: %w", requested, apperror.ErrInvalidStatus)
		}
		return "", fmt.Errorf("cannot move draft from %s to %s: %w", current, requested, apperror.ErrInvalidTransition)
	}

	return "", fmt.Errorf("unknown event %d: %w", event, apperror.ErrInvalidTransition)
}
