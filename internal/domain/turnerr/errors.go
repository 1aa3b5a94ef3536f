// Package turnerr defines the error kinds callers of the turn engine can
// distinguish with errors.Is.
package turnerr

import "errors"

var (
	// ErrNotFound means the group or a referenced history entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrParticipantNotFound means the referenced roster slot does not exist.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrAlreadyClaimed means another account claimed the placeholder first.
	ErrAlreadyClaimed = errors.New("placeholder already claimed")
	// ErrAlreadyMember means the account already holds a slot in the group.
	ErrAlreadyMember = errors.New("already a member of this group")
	// ErrAlreadyUndone means the history entry was already reverted.
	ErrAlreadyUndone = errors.New("turn already undone")
	// ErrTransientStore wraps network and quota failures from the store.
	ErrTransientStore = errors.New("transient store error")
	// ErrInvalidInput means the request was malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden means the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited means the actor sent too many changes in a short window.
	ErrRateLimited = errors.New("too many requests")
)

// Kind returns a stable short name for err, or "internal" when it is not one
// of the kinds above.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParticipantNotFound):
		return "participant_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, ErrAlreadyUndone):
		return "already_undone"
	case errors.Is(err, ErrTransientStore):
		return "transient_store_error"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
