package app

import (
	"context"

	"quizcraft-service/internal/domain"
)

// Generator produces a quiz from a topic or a block of text.
type Generator interface {
	GenerateQuiz(ctx context.Context, req domain.GenerationRequest) (domain.Quiz, error)
}

// ImageSource supplies an optional illustrative image. An empty URL means none.
type ImageSource interface {
	RandomImage(ctx context.Context) (string, error)
}

// Simplifier rewrites an explanation for a five-year-old.
type Simplifier interface {
	Simplify(ctx context.Context, text string) (string, error)
}

// Tutor answers the last user turn of a topic-scoped conversation.
type Tutor interface {
	Reply(ctx context.Context, req domain.TutorRequest) (string, error)
}

// ProgressRepository stores per-user aggregates. Saves merge, never shrink.
type ProgressRepository interface {
	LoadProgress(ctx context.Context, userID string) (domain.UserProgress, error)
	SaveProgress(ctx context.Context, userID string, progress domain.UserProgress) error
}

// HistoryRepository keeps the newest domain.MaxHistory attempts per user.
type HistoryRepository interface {
	LoadHistory(ctx context.Context, userID string) ([]domain.QuizAttempt, error)
	AppendAttempt(ctx context.Context, userID string, attempt domain.QuizAttempt) error
}

// QuizRepository persists generated quizzes.
type QuizRepository interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SharedQuizRepository stores shared sessions and their per-user latest attempts.
type SharedQuizRepository interface {
	CreateSharedQuiz(ctx context.Context, shared domain.SharedQuiz) (domain.SharedQuiz, error)
	GetSharedQuiz(ctx context.Context, sharedQuizID string) (domain.SharedQuiz, error)
	UpsertSharedAttempt(ctx context.Context, sharedQuizID string, attempt domain.SharedQuizAttempt) error
	Leaderboard(ctx context.Context, sharedQuizID string) ([]domain.LeaderboardEntry, error)
}

// Store is the full persistence surface a session needs.
type Store interface {
	ProgressRepository
	HistoryRepository
	QuizRepository
	SharedQuizRepository
}

// QuizReader is the read half of QuizRepository, satisfied by the quiz caches.
type QuizReader interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

type cachedStore struct {
	Store
	quizzes QuizReader
}

func (s cachedStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// WithQuizCache serves GetQuiz from cache. Every other call goes straight to store.
func WithQuizCache(store Store, cache QuizReader) Store {
	if cache == nil {
		return store
	}
	return cachedStore{Store: store, quizzes: cache}
}
