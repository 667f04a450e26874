package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSharedQuizNotFound is returned for an unknown shared quiz id.
	ErrSharedQuizNotFound = errors.New("shared quiz session not found; the link may be invalid or expired")
	// ErrRoomNotFound is returned when a room id does not resolve.
	ErrRoomNotFound = errors.New("room not found")
	// ErrEmptyQuiz rejects quizzes without questions before play starts.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrInvalidQuiz wraps any violated question invariant.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrInvalidConfig rejects a quiz request before generation.
	ErrInvalidConfig = errors.New("invalid quiz configuration")
	// ErrNotHost is returned when a non-host tries a host-gated room action.
	ErrNotHost = errors.New("only the host can do that")
	// ErrNotLoggedIn is returned by actions that need an identity.
	ErrNotLoggedIn = errors.New("you need to be logged in")
	// ErrGenerationUnavailable means the generative API is not configured.
	ErrGenerationUnavailable = errors.New("AI generation is not configured")
	// ErrMalformedResponse indicates the AI returned something unusable.
	ErrMalformedResponse = errors.New("malformed AI response")
	// ErrNoActiveQuiz is returned by play actions outside the quiz view.
	ErrNoActiveQuiz = errors.New("no active quiz")
	// ErrNotInRoom is returned by room actions before a room is created or joined.
	ErrNotInRoom = errors.New("not in a room")
	// ErrInvalidMessage rejects blank or oversized chat messages.
	ErrInvalidMessage = errors.New("chat message must be between 1 and 200 characters")
)
