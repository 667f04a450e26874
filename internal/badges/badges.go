package badges

import (
	"sort"
	"time"

	"quizcraft-service/internal/domain"
)

// Facts is what badge criteria are evaluated against. History is newest-first;
// Location decides calendar days and hours for the time-based badges.
type Facts struct {
	Progress domain.UserProgress
	History  []domain.QuizAttempt
	Location *time.Location
}

type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`

	criteria func(Facts) bool
}

// Met reports whether f satisfies the badge.
func (b Badge) Met(f Facts) bool { return b.criteria(f) }

var definitions = []Badge{
	{
		ID: "first_quiz", Name: "First Steps", Description: "Completed your first quiz!", Icon: "fas fa-shoe-prints",
		criteria: func(f Facts) bool { return f.Progress.TotalQuizzesTaken >= 1 },
	},
	{
		ID: "perfect_score", Name: "Perfectionist", Description: "Achieved a perfect score on a quiz.", Icon: "fas fa-bullseye",
		criteria: func(f Facts) bool {
			return anyAttempt(f.History, func(a domain.QuizAttempt) bool { return a.NumQuestions > 0 && a.Score == a.NumQuestions })
		},
	},
	{
		ID: "topic_explorer", Name: "Topic Explorer", Description: "Explored 3 different quiz topics.", Icon: "fas fa-map-signs",
		criteria: func(f Facts) bool { return len(f.Progress.CompletedTopics) >= 3 },
	},
	{
		ID: "quiz_whiz", Name: "Quiz Whiz", Description: "Answered 25 questions correctly in total.", Icon: "fas fa-star",
		criteria: func(f Facts) bool { return f.Progress.TotalCorrectAnswers >= 25 },
	},
	{
		ID: "speedster", Name: "Speedster", Description: "Successfully completed a timed quiz.", Icon: "fas fa-stopwatch",
		criteria: func(f Facts) bool { return f.Progress.CompletedTimedQuiz },
	},
	{
		ID: "knowledge_knight", Name: "Knowledge Knight", Description: "Answered 50 questions correctly in total.", Icon: "fas fa-shield-alt",
		criteria: func(f Facts) bool { return f.Progress.TotalCorrectAnswers >= 50 },
	},
	{
		ID: "streak_3", Name: "3-Day Streak", Description: "Completed a quiz 3 days in a row.", Icon: "fas fa-fire",
		criteria: func(f Facts) bool { return longestStreak(f.History, f.loc()) >= 3 },
	},
	{
		ID: "multiplayer_1", Name: "Squad Up", Description: "Played your first multiplayer game.", Icon: "fas fa-users",
		criteria: func(f Facts) bool { return countShared(f.History) >= 1 },
	},
	{
		ID: "multiplayer_5", Name: "Multiplayer Pro", Description: "Played 5 multiplayer games.", Icon: "fas fa-chess-knight",
		criteria: func(f Facts) bool { return countShared(f.History) >= 5 },
	},
	{
		ID: "quiz_sharer", Name: "Quiz Sharer", Description: "Shared a quiz with a friend.", Icon: "fas fa-share-alt",
		criteria: func(f Facts) bool { return countShared(f.History) >= 1 },
	},
	{
		ID: "night_owl", Name: "Night Owl", Description: "Completed a quiz between midnight and 5am.", Icon: "fas fa-moon",
		criteria: func(f Facts) bool {
			loc := f.loc()
			return anyAttempt(f.History, func(a domain.QuizAttempt) bool { return a.Timestamp.In(loc).Hour() < 5 })
		},
	},
	{
		ID: "hardcore", Name: "Hardcore", Description: "Completed a quiz with all questions set to Hard difficulty.", Icon: "fas fa-skull-crossbones",
		criteria: func(f Facts) bool {
			return anyAttempt(f.History, func(a domain.QuizAttempt) bool {
				qs := a.QuizSnapshot.Questions
				for _, q := range qs {
					if q.Difficulty != domain.DifficultyHard {
						return false
					}
				}
				return len(qs) > 0
			})
		},
	},
	{
		ID: "eli5_fan", Name: "ELI5 Fan", Description: `Used the "Explain Like I'm 5" feature.`, Icon: "fas fa-child",
		criteria: func(f Facts) bool {
			return anyAttempt(f.History, func(a domain.QuizAttempt) bool {
				for _, q := range a.QuizSnapshot.Questions {
					if q.SimplifiedExplanation != "" {
						return true
					}
				}
				return false
			})
		},
	},
}

// All returns the badge table in display order.
func All() []Badge {
	return append([]Badge(nil), definitions...)
}

// Lookup finds a badge by id.
func Lookup(id string) (Badge, bool) {
	for _, b := range definitions {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// Evaluate awards every badge whose criteria now hold and that the progress does not hold yet.
// Existing awards are never removed, so evaluating the result again changes nothing.
func Evaluate(f Facts) (domain.UserProgress, []Badge) {
	out := f.Progress.Clone()
	var awarded []Badge
	for _, b := range definitions {
		if out.HasBadge(b.ID) || !b.Met(f) {
			continue
		}
		out.AwardedBadgeIDs = append(out.AwardedBadgeIDs, b.ID)
		awarded = append(awarded, b)
	}
	return out, awarded
}

// Status pairs a badge with whether the user holds it.
type Status struct {
	Badge
	Awarded bool `json:"awarded"`
}

func Statuses(p domain.UserProgress) []Status {
	out := make([]Status, 0, len(definitions))
	for _, b := range definitions {
		out = append(out, Status{Badge: b, Awarded: p.HasBadge(b.ID)})
	}
	return out
}

func (f Facts) loc() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

func anyAttempt(history []domain.QuizAttempt, pred func(domain.QuizAttempt) bool) bool {
	for _, a := range history {
		if pred(a) {
			return true
		}
	}
	return false
}

func countShared(history []domain.QuizAttempt) int {
	n := 0
	for _, a := range history {
		if a.SharedQuizID != "" {
			n++
		}
	}
	return n
}

// longestStreak counts the longest run of consecutive calendar days with at least one attempt.
func longestStreak(history []domain.QuizAttempt, loc *time.Location) int {
	seen := map[time.Time]bool{}
	var days []time.Time
	for _, a := range history {
		t := a.Timestamp.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	best, run := 0, 0
	for i, d := range days {
		if i > 0 && d.Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
