package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quizcraft-service/internal/domain"
)

// fakeGemini answers generateContent with reply and records the last request.
type fakeGemini struct {
	reply  string
	status int
	last   generateRequest
	key    string
	path   string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.key = r.Header.Get("x-goog-api-key")
	f.path = r.URL.Path
	_ = json.NewDecoder(r.Body).Decode(&f.last)
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
		return
	}
	resp := map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": f.reply}}}},
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, f *fakeGemini) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL})
}

const quizJSON = `{
  "topic": "Chemistry",
  "questions": [
    {"question": "Symbol for water?", "options": {"A": "H2O", "B": "CO2", "C": "O2", "D": "NaCl"},
     "correctAnswer": "A", "explanation": "Two hydrogens, one oxygen.", "difficulty": "Easy", "imageUrl": "https://img/other.jpg"},
    {"question": "pH of pure water?", "options": {"A": "1", "B": "7", "C": "10", "D": "14"},
     "correctAnswer": "b", "explanation": "Neutral.", "difficulty": "Medium"}
  ]
}`

func TestNewWithoutKeyIsNil(t *testing.T) {
	if New(Config{}) != nil {
		t.Fatalf("expected nil client without an api key")
	}
}

func TestGenerateQuizParsesFencedReply(t *testing.T) {
	f := &fakeGemini{reply: "```json\n" + quizJSON + "\n```"}
	c := newTestClient(t, f)

	quiz, err := c.GenerateQuiz(context.Background(), domain.GenerationRequest{TopicOrText: "chemistry", NumQuestions: 2})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if quiz.Topic != "Chemistry" || len(quiz.Questions) != 2 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if quiz.Questions[1].CorrectAnswer != domain.OptionB {
		t.Fatalf("expected correct answer to be normalized, got %q", quiz.Questions[1].CorrectAnswer)
	}
	if err := quiz.Validate(); err != nil {
		t.Fatalf("expected a valid quiz, got %v", err)
	}
	if quiz.Questions[0].ImageURL != "" {
		t.Fatalf("expected stray image to be dropped without a supplied url")
	}
	if f.key != "test-key" || !strings.HasSuffix(f.path, "/models/gemini-2.0-flash:generateContent") {
		t.Fatalf("unexpected request key=%q path=%q", f.key, f.path)
	}
	prompt := f.last.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "Generate exactly 2 multiple-choice questions") {
		t.Fatalf("prompt missing question count: %s", prompt)
	}
	if strings.Contains(prompt, "Bloom's Taxonomy") || strings.Contains(prompt, "MUST be about the image") {
		t.Fatalf("prompt carries optional sections that were not requested")
	}
}

func TestGenerateQuizAssignsSuppliedImage(t *testing.T) {
	f := &fakeGemini{reply: quizJSON}
	c := newTestClient(t, f)

	quiz, err := c.GenerateQuiz(context.Background(), domain.GenerationRequest{
		TopicOrText:  "chemistry",
		NumQuestions: 2,
		ImageURL:     "https://img/supplied.jpg",
		BloomLevel:   "Analysis",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if quiz.Questions[0].ImageURL != "https://img/supplied.jpg" || quiz.Questions[1].ImageURL != "" {
		t.Fatalf("expected the supplied image on question 0 only, got %q / %q", quiz.Questions[0].ImageURL, quiz.Questions[1].ImageURL)
	}
	prompt := f.last.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "'Analysis' level of Bloom's Taxonomy") || !strings.Contains(prompt, `"https://img/supplied.jpg"`) {
		t.Fatalf("prompt missing bloom or image section: %s", prompt)
	}
}

func TestParseQuizKeepsFirstMatchingImage(t *testing.T) {
	reply := `{"topic":"T","questions":[
	  {"question":"q1","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A","explanation":"e","difficulty":"Easy"},
	  {"question":"q2","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A","explanation":"e","difficulty":"Easy","imageUrl":"u"},
	  {"question":"q3","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A","explanation":"e","difficulty":"Easy","imageUrl":"u"}]}`
	quiz, err := parseQuiz(reply, domain.GenerationRequest{TopicOrText: "t", ImageURL: "u"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := []string{quiz.Questions[0].ImageURL, quiz.Questions[1].ImageURL, quiz.Questions[2].ImageURL}
	if got[0] != "" || got[1] != "u" || got[2] != "" {
		t.Fatalf("expected only question 2 to keep the image, got %v", got)
	}
}

func TestParseQuizTopicFallback(t *testing.T) {
	long := strings.Repeat("x", 150)
	reply := `{"questions":[{"question":"q","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A","explanation":"e","difficulty":"Hard"}]}`
	quiz, err := parseQuiz(reply, domain.GenerationRequest{TopicOrText: long})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(quiz.Topic) != topicFallbackLen {
		t.Fatalf("expected topic truncated to %d, got %d", topicFallbackLen, len(quiz.Topic))
	}
}

func TestParseQuizNormalisesDifficulty(t *testing.T) {
	reply := `{"topic":"T","questions":[{"question":"q","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A","explanation":"e","difficulty":" hard "}]}`
	quiz, err := parseQuiz(reply, domain.GenerationRequest{TopicOrText: "t"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if quiz.Questions[0].Difficulty != domain.DifficultyHard {
		t.Fatalf("expected Hard, got %q", quiz.Questions[0].Difficulty)
	}
	if err := quiz.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseQuizRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       "I cannot help with that",
		"no questions":   `{"topic":"T","questions":[]}`,
		"three options":  `{"topic":"T","questions":[{"question":"q","options":{"A":"a","B":"b","C":"c"},"correctAnswer":"A","explanation":"e","difficulty":"Easy"}]}`,
		"no explanation": `{"topic":"T","questions":[{"question":"q","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A","difficulty":"Easy"}]}`,
		"bad difficulty": `{"topic":"T","questions":[{"question":"q","options":{"A":"a","B":"b","C":"c","D":"d"},"correctAnswer":"A","explanation":"e","difficulty":"Extreme"}]}`,
	}
	for name, reply := range cases {
		if _, err := parseQuiz(reply, domain.GenerationRequest{TopicOrText: "t"}); !errors.Is(err, domain.ErrMalformedResponse) {
			t.Fatalf("%s: expected ErrMalformedResponse, got %v", name, err)
		}
	}
}

func TestGenerateQuizSurfacesAPIErrors(t *testing.T) {
	c := newTestClient(t, &fakeGemini{status: http.StatusTooManyRequests})
	_, err := c.GenerateQuiz(context.Background(), domain.GenerationRequest{TopicOrText: "t", NumQuestions: 5})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected api status in error, got %v", err)
	}
}

func TestSimplify(t *testing.T) {
	f := &fakeGemini{reply: "  Water is wet.  "}
	c := newTestClient(t, f)

	out, err := c.Simplify(context.Background(), "Hydrogen bonds explain cohesion.")
	if err != nil {
		t.Fatalf("simplify: %v", err)
	}
	if out != "Water is wet." {
		t.Fatalf("unexpected simplification %q", out)
	}
	if !strings.Contains(f.last.Contents[0].Parts[0].Text, "Hydrogen bonds explain cohesion.") {
		t.Fatalf("prompt missing original text")
	}

	f.reply = ""
	if _, err := c.Simplify(context.Background(), "x"); err == nil {
		t.Fatalf("expected an error for an empty simplification")
	}
}

func TestReplySendsHistoryAndInstruction(t *testing.T) {
	f := &fakeGemini{reply: "What do you think causes it?"}
	c := newTestClient(t, f)

	out, err := c.Reply(context.Background(), domain.TutorRequest{
		Topic: "Photosynthesis",
		Mode:  domain.TutorSocratic,
		History: []domain.TutorMessage{
			{Role: domain.RoleModel, Text: "Hello! I'm your Socratic Guide"},
			{Role: domain.RoleUser, Text: "Why are leaves green?"},
			{Role: domain.RoleModel, Text: "What colour does chlorophyll absorb?"},
			{Role: domain.RoleSystem, Text: "Error: timeout"},
			{Role: domain.RoleUser, Text: "Red and blue?"},
		},
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if out != "What do you think causes it?" {
		t.Fatalf("unexpected reply %q", out)
	}
	if len(f.last.Contents) != 3 || f.last.Contents[0].Role != "user" || f.last.Contents[2].Parts[0].Text != "Red and blue?" {
		t.Fatalf("unexpected contents %+v", f.last.Contents)
	}
	if f.last.SystemInstruction == nil || !strings.Contains(f.last.SystemInstruction.Parts[0].Text, "Socratic method") {
		t.Fatalf("expected socratic system instruction, got %+v", f.last.SystemInstruction)
	}
}
