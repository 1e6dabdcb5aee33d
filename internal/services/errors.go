package services

import (
	"errors"
	"fmt"

	"github.com/Gopher0727/SecretSanta/internal/draw"
	"github.com/Gopher0727/SecretSanta/internal/notify"
)

// Error categories. Every error returned by this package matches exactly one
// of them with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrStateConflict        = errors.New("state conflict")
	ErrNotFound             = errors.New("not found")
	ErrDeliveryFailure      = notify.ErrDeliveryFailure
	ErrAssignmentImpossible = draw.ErrAssignmentImpossible
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func conflict(msg string) error { return &kindError{kind: ErrStateConflict, msg: msg} }

func notFound(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

var (
	ErrNotOwner                 = conflict("only the group owner can do this")
	ErrInvalidState             = conflict("this is not possible in the group's current status")
	ErrInsufficientParticipants = conflict("at least 2 participants are required for the draw")
	ErrAlreadyMember            = conflict("you are already a participant of this group")
	ErrGroupNotAccepting        = conflict("the group is no longer accepting participants")
	ErrOwnerCannotLeave         = conflict("the owner cannot leave their own group, close it instead")
	ErrOwnerHasOpenGroup        = conflict("you already own a group that is not closed")
	ErrNameLocked               = conflict("names can only be changed before the draw")
	ErrGiftLocked               = conflict("gifts can only be changed between the draw and the distribution")
	ErrGiftsNotViaBot           = conflict("this group does not collect gifts through the bot")

	ErrGroupNotFound  = notFound("group not found")
	ErrNotParticipant = notFound("you are not a participant of this group")
	ErrUserNotFound   = notFound("user not found, send /start first")
	ErrNoCandidates   = notFound("no matching groups")
)

// ValidationError is bad user input. The session re-prompts the same step.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UserMessage is the text shown to an end user for err.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	if errors.Is(err, ErrStateConflict) || errors.Is(err, ErrNotFound) {
		return err.Error()
	}
	return "something went wrong, please try again later"
}

// ErrNoOwnedGroup is returned when an owner command finds no group of the
// caller in a status that allows it.
var ErrNoOwnedGroup = notFound("you do not own a group in a suitable status")
