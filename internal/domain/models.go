package domain

import (
	"fmt"
	"strings"
	"time"
)

// OptionKey identifies one of the four fixed answer slots.
type OptionKey string

const (
	OptionA OptionKey = "A"
	OptionB OptionKey = "B"
	OptionC OptionKey = "C"
	OptionD OptionKey = "D"

	// Unanswered marks a question whose countdown expired before a choice was made.
	// It never equals a correct answer.
	Unanswered OptionKey = ""
)

// OptionKeys lists the answer slots in display order.
var OptionKeys = []OptionKey{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether k is one of A-D.
func (k OptionKey) Valid() bool {
	switch k {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty maps s onto Easy, Medium or Hard ignoring case and surrounding space.
func ParseDifficulty(s string) (Difficulty, bool) {
	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		if strings.EqualFold(strings.TrimSpace(s), string(d)) {
			return d, true
		}
	}
	return "", false
}

// DefaultTimePerQuestion is the countdown in seconds used when a timed quiz does not set one.
const DefaultTimePerQuestion = 30

// Question models an MCQ question with exactly four options and one correct key.
type Question struct {
	Question              string               `json:"question"`
	Options               map[OptionKey]string `json:"options"`
	CorrectAnswer         OptionKey            `json:"correctAnswer"`
	Explanation           string               `json:"explanation"`
	Difficulty            Difficulty           `json:"difficulty"`
	ImageURL              string               `json:"imageUrl,omitempty"`
	SimplifiedExplanation string               `json:"simplifiedExplanation,omitempty"`
}

// Validate checks the four-option / one-correct-key invariant and the difficulty.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("%w: empty question text", ErrInvalidQuiz)
	}
	if len(q.Options) != len(OptionKeys) {
		return fmt.Errorf("%w: expected %d options, got %d", ErrInvalidQuiz, len(OptionKeys), len(q.Options))
	}
	for _, k := range OptionKeys {
		if _, ok := q.Options[k]; !ok {
			return fmt.Errorf("%w: missing option %s", ErrInvalidQuiz, k)
		}
	}
	if !q.CorrectAnswer.Valid() {
		return fmt.Errorf("%w: correct answer %q is not one of A-D", ErrInvalidQuiz, q.CorrectAnswer)
	}
	if !q.Difficulty.Valid() {
		return fmt.Errorf("%w: difficulty %q is not Easy, Medium or Hard", ErrInvalidQuiz, q.Difficulty)
	}
	return nil
}

// Quiz is an ordered collection of questions. Question order never changes after generation.
type Quiz struct {
	ID              string     `json:"id,omitempty"`
	Topic           string     `json:"topic"`
	Questions       []Question `json:"questions"`
	IsTimed         bool       `json:"isTimed,omitempty"`
	TimePerQuestion int        `json:"timePerQuestion,omitempty"` // seconds
	CreatedBy       string     `json:"createdBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt,omitempty"`
}

// Validate rejects empty quizzes, malformed questions and more than one image question.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return ErrEmptyQuiz
	}
	images := 0
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		if question.ImageURL != "" {
			images++
		}
	}
	if images > 1 {
		return fmt.Errorf("%w: %d questions carry an image", ErrInvalidQuiz, images)
	}
	return nil
}

// Countdown returns the per-question limit, or zero for untimed quizzes.
func (q Quiz) Countdown() time.Duration {
	if !q.IsTimed {
		return 0
	}
	secs := q.TimePerQuestion
	if secs <= 0 {
		secs = DefaultTimePerQuestion
	}
	return time.Duration(secs) * time.Second
}

// Clone returns a deep copy so that patches to one session never leak into another.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		opts := make(map[OptionKey]string, len(question.Options))
		for k, v := range question.Options {
			opts[k] = v
		}
		question.Options = opts
		out.Questions[i] = question
	}
	return out
}

// WithoutSimplifications returns a play-ready copy with every ELI5 patch removed.
func (q Quiz) WithoutSimplifications() Quiz {
	out := q.Clone()
	for i := range out.Questions {
		out.Questions[i].SimplifiedExplanation = ""
	}
	return out
}

// Answers maps question index to the chosen key. Absent means not reached;
// Unanswered means the countdown expired.
type Answers map[int]OptionKey

func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// QuizAttempt is an immutable record of one personal play-through.
type QuizAttempt struct {
	ID           string    `json:"id"`
	QuizID       string    `json:"quizId"`
	SharedQuizID string    `json:"sharedQuizId,omitempty"`
	UserID       string    `json:"userId"`
	QuizSnapshot Quiz      `json:"quizSnapshot"`
	UserAnswers  Answers   `json:"userAnswers"`
	Score        int       `json:"score"`
	Timestamp    time.Time `json:"timestamp"`
	Topic        string    `json:"topic"`
	NumQuestions int       `json:"numQuestions"`
	IsTimedQuiz  bool      `json:"isTimedQuiz"`
}

// MaxHistory is how many attempts are retained per user.
const MaxHistory = 20

// SharedQuiz is a link-addressable session wrapping one stored quiz.
type SharedQuiz struct {
	ID                 string    `json:"id"`
	QuizID             string    `json:"quizId"`
	CreatorID          string    `json:"creatorId"`
	CreatorDisplayName string    `json:"creatorDisplayName,omitempty"`
	Topic              string    `json:"topic"`
	NumQuestions       int       `json:"numQuestions"`
	IsTimed            bool      `json:"isTimed"`
	TimePerQuestion    int       `json:"timePerQuestion,omitempty"`
	Proctored          bool      `json:"proctored"`
	CreatedAt          time.Time `json:"createdAt"`
}

// SharedQuizAttempt is the latest result of one user on a shared quiz.
type SharedQuizAttempt struct {
	UserID          string    `json:"userId"`
	UserDisplayName string    `json:"userDisplayName"`
	Score           int       `json:"score"`
	NumQuestions    int       `json:"numQuestions"`
	Timestamp       time.Time `json:"timestamp"`
}

type LeaderboardEntry = SharedQuizAttempt

// UserProgress aggregates a user's personal quiz activity.
type UserProgress struct {
	UserID              string   `json:"userId,omitempty"`
	AwardedBadgeIDs     []string `json:"awardedBadgeIds"`
	CompletedTopics     []string `json:"completedTopics"`
	TotalCorrectAnswers int      `json:"totalCorrectAnswers"`
	TotalQuizzesTaken   int      `json:"totalQuizzesTaken"`
	CompletedTimedQuiz  bool     `json:"completedTimedQuiz"`
}

func (p UserProgress) HasBadge(id string) bool {
	return contains(p.AwardedBadgeIDs, id)
}

func (p UserProgress) HasTopic(topic string) bool {
	return contains(p.CompletedTopics, topic)
}

// Merge combines two progress records without losing anything either side holds:
// sets are unioned, counters take the larger value, flags are sticky.
func (p UserProgress) Merge(other UserProgress) UserProgress {
	out := p.Clone()
	if out.UserID == "" {
		out.UserID = other.UserID
	}
	out.AwardedBadgeIDs = union(out.AwardedBadgeIDs, other.AwardedBadgeIDs)
	out.CompletedTopics = union(out.CompletedTopics, other.CompletedTopics)
	if other.TotalCorrectAnswers > out.TotalCorrectAnswers {
		out.TotalCorrectAnswers = other.TotalCorrectAnswers
	}
	if other.TotalQuizzesTaken > out.TotalQuizzesTaken {
		out.TotalQuizzesTaken = other.TotalQuizzesTaken
	}
	out.CompletedTimedQuiz = out.CompletedTimedQuiz || other.CompletedTimedQuiz
	return out
}

// Record folds one finished personal quiz into the aggregate.
func (p UserProgress) Record(topic string, score int, timed bool) UserProgress {
	out := p.Clone()
	out.TotalQuizzesTaken++
	out.TotalCorrectAnswers += score
	out.CompletedTopics = union(out.CompletedTopics, []string{topic})
	out.CompletedTimedQuiz = out.CompletedTimedQuiz || timed
	return out
}

func (p UserProgress) Clone() UserProgress {
	out := p
	out.AwardedBadgeIDs = append([]string{}, p.AwardedBadgeIDs...)
	out.CompletedTopics = append([]string{}, p.CompletedTopics...)
	return out
}

// User is the acting identity of a client session. A zero User is anonymous.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

func (u User) LoggedIn() bool { return u.ID != "" }

// Label is the name shown on leaderboards and in rooms.
func (u User) Label() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if email := strings.TrimSpace(u.Email); email != "" {
		return email
	}
	return "Anonymous"
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func union(a, b []string) []string {
	out := append([]string{}, a...)
	for _, v := range b {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
