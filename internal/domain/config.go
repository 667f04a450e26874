package domain

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	MinQuestions     = 5
	MaxQuestions     = 100
	DefaultQuestions = 5
)

// BloomLevels are the accepted Bloom's taxonomy focus levels; empty means mixed.
var BloomLevels = []string{"", "Knowledge", "Comprehension", "Application", "Analysis", "Synthesis", "Evaluation"}

var surpriseTopics = []string{
	"The Roman Empire", "Basics of Quantum Physics", "Famous Artists of the Renaissance",
	"The Human Brain", "Climate Change Causes and Effects", "World War II Key Events",
	"The Solar System", "Introduction to Python Programming", "Ancient Egyptian Mythology",
	"The Discovery of Penicillin",
}

// SurpriseTopic picks a random topic for the "surprise me" action.
func SurpriseTopic() string {
	return surpriseTopics[rand.Intn(len(surpriseTopics))]
}

// QuizConfig is what a user submits to generate their own quiz.
type QuizConfig struct {
	TopicOrText  string `json:"topicOrText"`
	NumQuestions int    `json:"numQuestions"`
	BloomLevel   string `json:"bloomLevel,omitempty"`
	IsTimed      bool   `json:"isTimed,omitempty"`
	Share        bool   `json:"share,omitempty"`
	Proctored    bool   `json:"proctored,omitempty"`
}

// Normalize trims input and fills the default question count, then validates.
func (c QuizConfig) Normalize() (QuizConfig, error) {
	c.TopicOrText = strings.TrimSpace(c.TopicOrText)
	c.BloomLevel = strings.TrimSpace(c.BloomLevel)
	if c.NumQuestions == 0 {
		c.NumQuestions = DefaultQuestions
	}
	if c.TopicOrText == "" {
		return c, fmt.Errorf("%w: topic or text is required", ErrInvalidConfig)
	}
	if c.NumQuestions < MinQuestions || c.NumQuestions > MaxQuestions {
		return c, fmt.Errorf("%w: number of questions must be between %d and %d", ErrInvalidConfig, MinQuestions, MaxQuestions)
	}
	if !contains(BloomLevels, c.BloomLevel) {
		return c, fmt.Errorf("%w: unknown bloom level %q", ErrInvalidConfig, c.BloomLevel)
	}
	return c, nil
}
