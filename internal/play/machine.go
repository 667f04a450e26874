package play

import (
	"sync"
	"time"

	"quizcraft-service/internal/domain"
)

// State is the phase of the current question.
type State int

const (
	AwaitingAnswer State = iota
	ShowingFeedback
	Submitted
)

func (s State) String() string {
	switch s {
	case AwaitingAnswer:
		return "awaitingAnswer"
	case ShowingFeedback:
		return "showingFeedback"
	case Submitted:
		return "submitted"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Step is the outcome of Advance.
type Step int

const (
	StepRejected Step = iota
	StepNext
	StepSubmitted
)

// Timer is the part of *time.Timer the machine needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d; swapped out in tests.
type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Machine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithAfterFunc overrides time.AfterFunc for the countdown.
func WithAfterFunc(af AfterFunc) Option {
	return func(m *Machine) { m.afterFunc = af }
}

// OnExpire registers a hook fired (outside the lock) when a countdown forces feedback.
func OnExpire(fn func(index int)) Option {
	return func(m *Machine) { m.onExpire = fn }
}

// Machine drives one quiz question by question. It is safe for concurrent use;
// the countdown fires from its own goroutine.
type Machine struct {
	mu        sync.Mutex
	quiz      domain.Quiz
	index     int
	state     State
	answers   domain.Answers
	limit     time.Duration
	startedAt time.Time
	frozen    int
	timer     Timer

	now       func() time.Time
	afterFunc AfterFunc
	onExpire  func(int)
}

// New starts a machine at question 0. Empty quizzes are rejected.
func New(quiz domain.Quiz, opts ...Option) (*Machine, error) {
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrEmptyQuiz
	}
	m := &Machine{
		quiz:    quiz,
		answers: domain.Answers{},
		limit:   quiz.Countdown(),
		now:     time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.mu.Lock()
	m.enterLocked(0)
	m.mu.Unlock()
	return m, nil
}

func (m *Machine) enterLocked(i int) {
	m.stopTimerLocked()
	m.index = i
	m.state = AwaitingAnswer
	m.startedAt = m.now()
	m.frozen = int(m.limit / time.Second)
	if m.limit > 0 {
		m.timer = m.afterFunc(m.limit, func() { m.expire(i) })
	}
}

func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// SelectOption records key for the current question and shows feedback.
// It reports false when nothing changed: feedback already showing, quiz submitted,
// key invalid, or the countdown already ran out.
func (m *Machine) SelectOption(key domain.OptionKey) bool {
	if !key.Valid() {
		return false
	}
	m.mu.Lock()
	if m.state != AwaitingAnswer {
		m.mu.Unlock()
		return false
	}
	if m.limit > 0 && m.remainingLocked() <= 0 {
		fired := m.expireLocked(m.index)
		idx, hook := m.index, m.onExpire
		m.mu.Unlock()
		if fired && hook != nil {
			hook(idx)
		}
		return false
	}
	m.answers[m.index] = key
	m.frozen = m.remainingLocked()
	m.stopTimerLocked()
	m.state = ShowingFeedback
	m.mu.Unlock()
	return true
}

// Advance leaves feedback: to the next question, or to Submitted after the last one.
func (m *Machine) Advance() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != ShowingFeedback {
		return StepRejected
	}
	if m.index == len(m.quiz.Questions)-1 {
		m.stopTimerLocked()
		m.state = Submitted
		return StepSubmitted
	}
	m.enterLocked(m.index + 1)
	return StepNext
}

// Tick re-derives the remaining seconds from the clock and expires the question at zero.
// Repeated ticks within the same second yield the same value.
func (m *Machine) Tick() int {
	m.mu.Lock()
	if m.state != AwaitingAnswer || m.limit <= 0 {
		rem := m.frozen
		m.mu.Unlock()
		return rem
	}
	rem := m.remainingLocked()
	fired := false
	if rem <= 0 {
		fired = m.expireLocked(m.index)
	}
	idx, hook := m.index, m.onExpire
	m.mu.Unlock()
	if fired && hook != nil {
		hook(idx)
	}
	return rem
}

func (m *Machine) expire(i int) {
	m.mu.Lock()
	fired := m.expireLocked(i)
	hook := m.onExpire
	m.mu.Unlock()
	if fired && hook != nil {
		hook(i)
	}
}

func (m *Machine) expireLocked(i int) bool {
	if m.state != AwaitingAnswer || m.index != i {
		return false
	}
	m.stopTimerLocked()
	if _, ok := m.answers[i]; !ok {
		m.answers[i] = domain.Unanswered
	}
	m.frozen = 0
	m.state = ShowingFeedback
	return true
}

func (m *Machine) remainingLocked() int {
	if m.limit <= 0 {
		return 0
	}
	left := m.limit - m.now().Sub(m.startedAt)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Close stops any pending countdown.
func (m *Machine) Close() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.mu.Unlock()
}

// State returns the phase and current index.
func (m *Machine) State() (State, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.index
}

// Answers returns a copy of the recorded answers.
func (m *Machine) Answers() domain.Answers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answers.Clone()
}

func (m *Machine) Quiz() domain.Quiz {
	return m.quiz
}

// Snapshot renders the current question for display. The correct answer is
// only revealed once feedback is showing.
func (m *Machine) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := len(m.quiz.Questions)
	view := View{
		State:     m.state,
		Index:     m.index,
		Total:     total,
		IsLast:    m.index == total-1,
		Timed:     m.limit > 0,
		TimeLimit: int(m.limit / time.Second),
		Remaining: m.frozen,
	}
	if m.state == AwaitingAnswer && m.limit > 0 {
		view.Remaining = m.remainingLocked()
	}
	if m.state == Submitted {
		view.Score = Score(m.quiz, m.answers)
		return view
	}

	q := m.quiz.Questions[m.index]
	view.Question = questionView(q)
	selected, answered := m.answers[m.index]
	view.Selected = selected
	if m.state == ShowingFeedback {
		view.TimeUp = answered && selected == domain.Unanswered
		view.Feedback = Feedback(q, selected)
		view.CorrectAnswer = q.CorrectAnswer
		view.Explanation = q.Explanation
	}
	return view
}
