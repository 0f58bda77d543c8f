package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the base for unknown quiz or session ids.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrSessionNotFound is returned when no live session has the given id.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrInvalidQuiz marks a quiz definition that breaks the model invariants.
	ErrInvalidQuiz = errors.New("invalid quiz definition")

	// ErrInvalidState is returned for an operation attempted in the wrong lifecycle phase.
	ErrInvalidState = errors.New("invalid session state")
	// ErrSessionClosed is returned for any mutation of a finished session.
	ErrSessionClosed = errors.New("session closed")
	// ErrLateAnswer is returned when the answer window of the current question elapsed.
	ErrLateAnswer = errors.New("answer window elapsed")

	// ErrNicknameTaken is returned when the nickname is already on the roster.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrInvalidNickname is returned for a blank nickname.
	ErrInvalidNickname = errors.New("invalid nickname")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrAlreadyAnswered is returned for a second answer to the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrAnswerNotFound indicates a submitted answer ID is not part of the current question.
	ErrAnswerNotFound = errors.New("answer not found")
)

var rejections = []error{
	ErrInvalidState,
	ErrSessionClosed,
	ErrLateAnswer,
	ErrNicknameTaken,
	ErrInvalidNickname,
	ErrParticipantNotFound,
	ErrAlreadyAnswered,
	ErrAnswerNotFound,
}

// IsRejection reports whether err is an expected admission or submission outcome
// rather than a structural failure.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
