package services

type SessionState int

const (
	StateUninitialized SessionState = iota
	StateActive
	StateComplete
)

func (s SessionState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	default:
		return "uninitialized"
	}
}

// Session walks a respondent through the questions that were unanswered
// when it was initialized. Skipping writes nothing; a skipped question keeps
// a null response. Once complete it stays complete.
type Session struct {
	RespondentID string
	queue        []*Question
	pos          int
	state        SessionState
}

// NewSession starts a session over unanswered, which is copied.
func NewSession(respondentID string, unanswered []*Question) *Session {
	s := &Session{
		RespondentID: respondentID,
		queue:        append([]*Question(nil), unanswered...),
		state:        StateActive,
	}
	if len(s.queue) == 0 {
		s.state = StateComplete
	}
	return s
}

func (s *Session) State() SessionState { return s.state }

func (s *Session) Done() bool { return s.state == StateComplete }

// Unanswered returns the queue captured at initialization.
func (s *Session) Unanswered() []*Question {
	return append([]*Question(nil), s.queue...)
}

// Current returns the question being shown, or false once complete.
func (s *Session) Current() (*Question, bool) {
	if s.state != StateActive {
		return nil, false
	}
	return s.queue[s.pos], true
}

// Position returns the 1-based index of the current question and the queue size.
func (s *Session) Position() (int, int) {
	if s.state != StateActive {
		return len(s.queue), len(s.queue)
	}
	return s.pos + 1, len(s.queue)
}

// Skip leaves the current question unanswered and moves on.
func (s *Session) Skip() { s.Advance() }

// Advance moves to the next question and completes the session when the
// queue is exhausted.
func (s *Session) Advance() {
	if s.state != StateActive {
		return
	}
	s.pos++
	if s.pos >= len(s.queue) {
		s.state = StateComplete
	}
}
