package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"quizcraft-service/internal/domain"
)

// topicFallbackLen bounds the topic taken from the input when the model omits one.
const topicFallbackLen = 100

var fence = regexp.MustCompile("(?s)^```(\\w*)?\\s*\\n?(.*?)\\n?\\s*```$")

type rawQuiz struct {
	Topic     string        `json:"topic"`
	Questions []rawQuestion `json:"questions"`
}

type rawQuestion struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
	Explanation   string            `json:"explanation"`
	Difficulty    string            `json:"difficulty"`
	ImageURL      string            `json:"imageUrl"`
}

// GenerateQuiz asks the model for a quiz and checks the reply's shape. The result
// has no id and no timing; the caller owns those.
func (c *Client) GenerateQuiz(ctx context.Context, req domain.GenerationRequest) (domain.Quiz, error) {
	text, err := c.generate(ctx, generateRequest{Contents: userText(quizPrompt(req))})
	if err != nil {
		return domain.Quiz{}, err
	}
	return parseQuiz(text, req)
}

func parseQuiz(text string, req domain.GenerationRequest) (domain.Quiz, error) {
	if m := fence.FindStringSubmatch(text); m != nil && m[2] != "" {
		text = strings.TrimSpace(m[2])
	}
	var raw rawQuiz
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	topic := strings.TrimSpace(raw.Topic)
	if topic == "" {
		topic = truncate(req.TopicOrText, topicFallbackLen)
	}
	if len(raw.Questions) == 0 {
		return domain.Quiz{}, fmt.Errorf("%w: AI did not return any questions. Try a different topic or phrasing", domain.ErrMalformedResponse)
	}

	quiz := domain.Quiz{Topic: topic, Questions: make([]domain.Question, 0, len(raw.Questions))}
	imageAssigned := false
	for i, rq := range raw.Questions {
		if rq.Question == "" || len(rq.Options) != 4 || rq.CorrectAnswer == "" || rq.Explanation == "" || rq.Difficulty == "" {
			return domain.Quiz{}, fmt.Errorf("%w: malformed question data for question %d", domain.ErrMalformedResponse, i+1)
		}
		difficulty, ok := domain.ParseDifficulty(rq.Difficulty)
		if !ok {
			return domain.Quiz{}, fmt.Errorf("%w: unknown difficulty %q for question %d", domain.ErrMalformedResponse, rq.Difficulty, i+1)
		}
		q := domain.Question{
			Question:      rq.Question,
			Options:       make(map[domain.OptionKey]string, len(rq.Options)),
			CorrectAnswer: domain.OptionKey(strings.ToUpper(strings.TrimSpace(rq.CorrectAnswer))),
			Explanation:   rq.Explanation,
			Difficulty:    difficulty,
		}
		for k, v := range rq.Options {
			q.Options[domain.OptionKey(strings.ToUpper(strings.TrimSpace(k)))] = v
		}
		// only the first question carrying exactly the supplied image keeps it
		if req.ImageURL != "" && rq.ImageURL == req.ImageURL && !imageAssigned {
			q.ImageURL = req.ImageURL
			imageAssigned = true
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if req.ImageURL != "" && !imageAssigned {
		quiz.Questions[0].ImageURL = req.ImageURL
	}
	return quiz, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
