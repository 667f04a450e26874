package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizcraft-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. It is the default backend
// when neither Postgres nor Redis is configured, and the backend of most tests.
type Store struct {
	now func() time.Time

	mu       sync.RWMutex
	quizzes  map[string]domain.Quiz
	shared   map[string]domain.SharedQuiz
	attempts map[string]map[string]domain.SharedQuizAttempt // shared quiz id -> user id
	history  map[string][]domain.QuizAttempt                // newest first
	progress map[string]domain.UserProgress
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:      now,
		quizzes:  make(map[string]domain.Quiz),
		shared:   make(map[string]domain.SharedQuiz),
		attempts: make(map[string]map[string]domain.SharedQuizAttempt),
		history:  make(map[string][]domain.QuizAttempt),
		progress: make(map[string]domain.UserProgress),
	}
}

func (s *Store) SaveQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.quizzes[quiz.ID] = quiz.Clone()
	s.mu.Unlock()
	return quiz, nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz.Clone(), nil
}

func (s *Store) CreateSharedQuiz(_ context.Context, shared domain.SharedQuiz) (domain.SharedQuiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[shared.QuizID]; !ok {
		return domain.SharedQuiz{}, domain.ErrQuizNotFound
	}
	if shared.ID == "" {
		shared.ID = uuid.NewString()
	}
	if shared.CreatedAt.IsZero() {
		shared.CreatedAt = s.now()
	}
	s.shared[shared.ID] = shared
	return shared, nil
}

func (s *Store) GetSharedQuiz(_ context.Context, sharedQuizID string) (domain.SharedQuiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shared, ok := s.shared[sharedQuizID]
	if !ok {
		return domain.SharedQuiz{}, domain.ErrSharedQuizNotFound
	}
	return shared, nil
}

// UpsertSharedAttempt keeps only the latest attempt per user.
func (s *Store) UpsertSharedAttempt(_ context.Context, sharedQuizID string, attempt domain.SharedQuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shared[sharedQuizID]; !ok {
		return domain.ErrSharedQuizNotFound
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = s.now()
	}
	byUser, ok := s.attempts[sharedQuizID]
	if !ok {
		byUser = make(map[string]domain.SharedQuizAttempt)
		s.attempts[sharedQuizID] = byUser
	}
	byUser[attempt.UserID] = attempt
	return nil
}

// Leaderboard orders by score descending, then by who finished first.
func (s *Store) Leaderboard(_ context.Context, sharedQuizID string) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.shared[sharedQuizID]; !ok {
		return nil, domain.ErrSharedQuizNotFound
	}
	entries := make([]domain.LeaderboardEntry, 0, len(s.attempts[sharedQuizID]))
	for _, a := range s.attempts[sharedQuizID] {
		entries = append(entries, a)
	}
	SortLeaderboard(entries)
	return entries, nil
}

// SortLeaderboard applies the shared-quiz ranking: score desc, timestamp asc, user id.
func SortLeaderboard(entries []domain.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].UserID < entries[j].UserID
	})
}

func (s *Store) LoadHistory(_ context.Context, userID string) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.QuizAttempt(nil), s.history[userID]...), nil
}

// AppendAttempt inserts by timestamp and prunes everything past domain.MaxHistory.
func (s *Store) AppendAttempt(_ context.Context, userID string, attempt domain.QuizAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = s.now()
	}
	attempt.UserID = userID

	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]domain.QuizAttempt{attempt}, s.history[userID]...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	if len(items) > domain.MaxHistory {
		items = items[:domain.MaxHistory]
	}
	s.history[userID] = items
	return nil
}

func (s *Store) LoadProgress(_ context.Context, userID string) (domain.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[userID]
	if !ok {
		return domain.UserProgress{UserID: userID, AwardedBadgeIDs: []string{}, CompletedTopics: []string{}}, nil
	}
	return p.Clone(), nil
}

// SaveProgress merges into what is stored, so a stale writer cannot drop a badge.
func (s *Store) SaveProgress(_ context.Context, userID string, progress domain.UserProgress) error {
	progress.UserID = userID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[userID] = progress.Merge(s.progress[userID])
	return nil
}
