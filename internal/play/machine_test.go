package play_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/play"
)

type fakeTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// fire runs the callback even after Stop, like a timer that already left the runtime queue.
func (t *fakeTimer) fire() { t.fn() }

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) play.Timer {
	t := &fakeTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) last() *fakeTimer { return c.timers[len(c.timers)-1] }

func sampleQuiz(n int, timed bool) domain.Quiz {
	keys := []domain.OptionKey{domain.OptionA, domain.OptionB, domain.OptionC, domain.OptionD}
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			Question:      "question",
			Options:       map[domain.OptionKey]string{"A": "a", "B": "b", "C": "c", "D": "d"},
			CorrectAnswer: keys[i%4],
			Explanation:   "because",
			Difficulty:    domain.DifficultyEasy,
		}
	}
	return domain.Quiz{ID: "quiz-1", Topic: "Go", Questions: qs, IsTimed: timed, TimePerQuestion: 30}
}

func newMachine(t *testing.T, quiz domain.Quiz, clock *fakeClock, opts ...play.Option) *play.Machine {
	t.Helper()
	opts = append(opts, play.WithClock(clock.Now), play.WithAfterFunc(clock.AfterFunc))
	m, err := play.New(quiz, opts...)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m
}

func TestNewRejectsEmptyQuiz(t *testing.T) {
	if _, err := play.New(domain.Quiz{Topic: "empty"}); !errors.Is(err, domain.ErrEmptyQuiz) {
		t.Fatalf("expected ErrEmptyQuiz, got %v", err)
	}
}

func TestSelectOptionTwiceIsNoop(t *testing.T) {
	m := newMachine(t, sampleQuiz(3, false), newFakeClock())

	if !m.SelectOption(domain.OptionB) {
		t.Fatalf("first select should be accepted")
	}
	before := m.Snapshot()
	if m.SelectOption(domain.OptionA) {
		t.Fatalf("second select should be rejected while feedback shows")
	}
	after := m.Snapshot()
	if before.Selected != after.Selected || before.State != after.State || before.Index != after.Index {
		t.Fatalf("state changed after second select: %+v vs %+v", before, after)
	}
	if got := m.Answers()[0]; got != domain.OptionB {
		t.Fatalf("expected answer B kept, got %q", got)
	}
}

func TestSelectOptionRejectsUnknownKey(t *testing.T) {
	m := newMachine(t, sampleQuiz(1, false), newFakeClock())
	if m.SelectOption("E") {
		t.Fatalf("unknown key accepted")
	}
	if state, _ := m.State(); state != play.AwaitingAnswer {
		t.Fatalf("expected awaiting answer, got %v", state)
	}
}

func TestAdvanceSubmitsExactlyOnce(t *testing.T) {
	m := newMachine(t, sampleQuiz(2, false), newFakeClock())

	if m.Advance() != play.StepRejected {
		t.Fatalf("advance before answering must be rejected")
	}
	m.SelectOption(domain.OptionA)
	if step := m.Advance(); step != play.StepNext {
		t.Fatalf("expected next, got %v", step)
	}
	m.SelectOption(domain.OptionB)
	if step := m.Advance(); step != play.StepSubmitted {
		t.Fatalf("expected submitted, got %v", step)
	}
	if step := m.Advance(); step != play.StepRejected {
		t.Fatalf("second advance after submit should be rejected, got %v", step)
	}
	if m.SelectOption(domain.OptionC) {
		t.Fatalf("select after submit should be rejected")
	}
	if m.Tick() != 0 {
		t.Fatalf("tick after submit should report 0")
	}
	view := m.Snapshot()
	if view.State != play.Submitted || view.Score != 2 {
		t.Fatalf("expected submitted with score 2, got %+v", view)
	}
}

func TestCountdownExpiryRecordsUnanswered(t *testing.T) {
	clock := newFakeClock()
	var expired []int
	m := newMachine(t, sampleQuiz(1, true), clock, play.OnExpire(func(i int) { expired = append(expired, i) }))

	clock.last().fire()

	answers := m.Answers()
	got, ok := answers[0]
	if !ok || got != domain.Unanswered {
		t.Fatalf("expected explicit unanswered marker, got %q (present=%v)", got, ok)
	}
	view := m.Snapshot()
	if !view.TimeUp || view.State != play.ShowingFeedback {
		t.Fatalf("expected time's up feedback, got %+v", view)
	}
	if m.Advance() != play.StepSubmitted {
		t.Fatalf("expected submit after expiry")
	}
	if score := play.Score(m.Quiz(), m.Answers()); score != 0 {
		t.Fatalf("unanswered must count as incorrect, got %d", score)
	}
	if len(expired) != 1 || expired[0] != 0 {
		t.Fatalf("expected one expiry hook for question 0, got %v", expired)
	}
}

func TestStaleTimerIsIgnored(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, sampleQuiz(2, true), clock)

	first := clock.last()
	m.SelectOption(domain.OptionA)
	m.Advance()
	if !first.stopped {
		t.Fatalf("countdown for question 0 should be cleared on transition")
	}
	first.fire()

	state, idx := m.State()
	if state != play.AwaitingAnswer || idx != 1 {
		t.Fatalf("stale timer moved the machine: %v at %d", state, idx)
	}
	if _, ok := m.Answers()[1]; ok {
		t.Fatalf("stale timer recorded an answer for question 1")
	}
}

func TestTickIsIdempotentWithinASecond(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, sampleQuiz(1, true), clock)

	clock.now = clock.now.Add(2500 * time.Millisecond)
	first := m.Tick()
	second := m.Tick()
	if first != 28 || second != 28 {
		t.Fatalf("expected 28 twice, got %d then %d", first, second)
	}

	clock.now = clock.now.Add(28 * time.Second)
	if rem := m.Tick(); rem != 0 {
		t.Fatalf("expected 0 at expiry, got %d", rem)
	}
	if got, ok := m.Answers()[0]; !ok || got != domain.Unanswered {
		t.Fatalf("tick at zero should expire the question, got %q", got)
	}
}

func TestSelectAfterDeadlineExpires(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, sampleQuiz(1, true), clock)

	clock.now = clock.now.Add(31 * time.Second)
	if m.SelectOption(domain.OptionA) {
		t.Fatalf("select after the deadline must be rejected")
	}
	if !m.Snapshot().TimeUp {
		t.Fatalf("expected time's up feedback")
	}
}

func TestRemainingFreezesOnFeedback(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, sampleQuiz(2, true), clock)

	clock.now = clock.now.Add(10 * time.Second)
	m.SelectOption(domain.OptionA)
	clock.now = clock.now.Add(10 * time.Second)
	if rem := m.Tick(); rem != 20 {
		t.Fatalf("expected frozen 20, got %d", rem)
	}
	m.Advance()
	if rem := m.Snapshot().Remaining; rem != 30 {
		t.Fatalf("countdown should reset on the next question, got %d", rem)
	}
}

func TestSnapshotHidesAnswerUntilFeedback(t *testing.T) {
	m := newMachine(t, sampleQuiz(1, false), newFakeClock())
	if view := m.Snapshot(); view.CorrectAnswer != "" || view.Feedback != nil {
		t.Fatalf("answer leaked before selection: %+v", view)
	}
	m.SelectOption(domain.OptionB)
	view := m.Snapshot()
	if view.CorrectAnswer != domain.OptionA || len(view.Feedback) != 4 {
		t.Fatalf("expected feedback with correct A, got %+v", view)
	}
}
