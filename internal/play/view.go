package play

import "quizcraft-service/internal/domain"

// Mark is how one option is highlighted while feedback is showing.
type Mark string

const (
	MarkNeutral   Mark = "neutral"
	MarkCorrect   Mark = "correct"
	MarkIncorrect Mark = "incorrect"
)

type OptionFeedback struct {
	Key  domain.OptionKey `json:"key"`
	Text string           `json:"text"`
	Mark Mark             `json:"mark"`
}

// QuestionView is a question without its answer key.
type QuestionView struct {
	Text       string                      `json:"text"`
	Options    map[domain.OptionKey]string `json:"options"`
	Difficulty domain.Difficulty           `json:"difficulty"`
	ImageURL   string                      `json:"imageUrl,omitempty"`
}

// View is a render-ready projection of a Machine.
type View struct {
	State         State            `json:"state"`
	Index         int              `json:"index"`
	Total         int              `json:"total"`
	IsLast        bool             `json:"isLast"`
	Timed         bool             `json:"timed"`
	TimeLimit     int              `json:"timeLimit,omitempty"`
	Remaining     int              `json:"remaining,omitempty"`
	Question      QuestionView     `json:"question"`
	Selected      domain.OptionKey `json:"selected,omitempty"`
	TimeUp        bool             `json:"timeUp,omitempty"`
	Feedback      []OptionFeedback `json:"feedback,omitempty"`
	CorrectAnswer domain.OptionKey `json:"correctAnswer,omitempty"`
	Explanation   string           `json:"explanation,omitempty"`
	Score         int              `json:"score,omitempty"`
}

func questionView(q domain.Question) QuestionView {
	opts := make(map[domain.OptionKey]string, len(q.Options))
	for k, v := range q.Options {
		opts[k] = v
	}
	return QuestionView{Text: q.Question, Options: opts, Difficulty: q.Difficulty, ImageURL: q.ImageURL}
}

// Feedback highlights the correct option and, when it differs, the selected one.
// Everything else stays neutral. An Unanswered selection marks nothing incorrect.
func Feedback(q domain.Question, selected domain.OptionKey) []OptionFeedback {
	out := make([]OptionFeedback, 0, len(domain.OptionKeys))
	for _, k := range domain.OptionKeys {
		mark := MarkNeutral
		switch {
		case k == q.CorrectAnswer:
			mark = MarkCorrect
		case k == selected:
			mark = MarkIncorrect
		}
		out = append(out, OptionFeedback{Key: k, Text: q.Options[k], Mark: mark})
	}
	return out
}
