package play

import (
	"math"

	"quizcraft-service/internal/domain"
)

// Score counts answers equal to their question's correct key.
// Unanswered markers and missing entries never match.
func Score(quiz domain.Quiz, answers domain.Answers) int {
	score := 0
	for i, q := range quiz.Questions {
		a, ok := answers[i]
		if ok && a.Valid() && a == q.CorrectAnswer {
			score++
		}
	}
	return score
}

// Summary is the headline of the results view.
type Summary struct {
	Score      int    `json:"score"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

func Summarize(score, total int) Summary {
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(score) / float64(total) * 100))
	}
	msg := "Good effort! Keep practicing."
	switch {
	case pct == 100:
		msg = "Perfect score! You're a Quiz Master!"
	case pct >= 80:
		msg = "Excellent work! You know your stuff!"
	case pct >= 60:
		msg = "Well done! Solid performance."
	}
	return Summary{Score: score, Total: total, Percentage: pct, Message: msg}
}
