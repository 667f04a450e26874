package domain

import (
	"errors"
	"testing"
)

func validQuestion() Question {
	return Question{
		Question:      "Capital of France?",
		Options:       map[OptionKey]string{OptionA: "Paris", OptionB: "Lyon", OptionC: "Nice", OptionD: "Lille"},
		CorrectAnswer: OptionA,
		Explanation:   "Paris is the capital.",
		Difficulty:    DifficultyEasy,
	}
}

func TestQuestionValidateDifficulty(t *testing.T) {
	q := validQuestion()
	if err := q.Validate(); err != nil {
		t.Fatalf("expected valid question, got %v", err)
	}
	for _, d := range []Difficulty{"", "hard", "Extreme"} {
		q.Difficulty = d
		if err := q.Validate(); !errors.Is(err, ErrInvalidQuiz) {
			t.Fatalf("difficulty %q: expected ErrInvalidQuiz, got %v", d, err)
		}
	}
}

func TestParseDifficulty(t *testing.T) {
	cases := map[string]Difficulty{"Easy": DifficultyEasy, "medium": DifficultyMedium, " HARD ": DifficultyHard}
	for in, want := range cases {
		got, ok := ParseDifficulty(in)
		if !ok || got != want {
			t.Fatalf("ParseDifficulty(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseDifficulty("Extreme"); ok {
		t.Fatalf("expected Extreme to be rejected")
	}
}
