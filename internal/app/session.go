package app

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Publisher receives the events a session emits. Publish is called under the
// session lock, so events of one session reach it in mutation order.
type Publisher interface {
	Publish(sessionID string, event domain.QuizEvent)
}

// Scheduler arms fn to run after d and returns a function that disarms it.
type Scheduler func(d time.Duration, fn func()) (stop func() bool)

func timerScheduler(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Session is one run of a quiz. All state is guarded by mu; a session never
// takes another session's lock.
type Session struct {
	id       string
	quiz     domain.Quiz
	now      func() time.Time
	schedule Scheduler
	events   Publisher

	mu              sync.Mutex
	state           domain.SessionState
	current         int
	questionStarted time.Time
	stopTimer       func() bool
	createdAt       time.Time
	startedAt       time.Time
	finishedAt      time.Time
	roster          map[string]*domain.Participant
	order           []string
}

func newSession(id string, quiz domain.Quiz, events Publisher, now func() time.Time, schedule Scheduler) *Session {
	return &Session{
		id:        id,
		quiz:      quiz,
		now:       now,
		schedule:  schedule,
		events:    events,
		state:     domain.SessionCreated,
		createdAt: now(),
		roster:    make(map[string]*domain.Participant),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) QuizID() string { return s.quiz.ID }

// State returns the current lifecycle phase.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FinishedAt returns when the session finished, or the zero time.
func (s *Session) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// Start moves a CREATED session to RUNNING and opens the first question.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SessionCreated {
		return fmt.Errorf("%w: cannot start a %s session", domain.ErrInvalidState, s.state)
	}
	s.state = domain.SessionRunning
	s.startedAt = s.now()
	s.current = 0
	s.publishResultsLocked()

	if len(s.quiz.Questions) == 0 {
		s.finishLocked()
		s.publishResultsLocked()
		return nil
	}
	s.openQuestionLocked()
	return nil
}

// Admit adds a participant with zero score. Allowed while CREATED or RUNNING.
func (s *Session) Admit(nickname string) error {
	nickname = strings.TrimSpace(nickname)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.SessionFinished {
		return domain.ErrSessionClosed
	}
	if nickname == "" {
		return domain.ErrInvalidNickname
	}
	if _, taken := s.roster[nickname]; taken {
		return fmt.Errorf("%w: %q", domain.ErrNicknameTaken, nickname)
	}

	now := s.now()
	s.roster[nickname] = &domain.Participant{
		Nickname:    nickname,
		JoinedAt:    now,
		LastUpdated: now,
	}
	s.order = append(s.order, nickname)
	s.events.Publish(s.id, domain.ParticipantsUpdatedEvent{
		SessionID:    s.id,
		Participants: s.rosterLocked(),
	})
	return nil
}

// Submit scores answerID for the current question on behalf of nickname.
// When the submission completes the question for every participant, the
// session advances before the results event is emitted.
func (s *Session) Submit(nickname, answerID string) (domain.SubmittedAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.SessionCreated:
		return domain.SubmittedAnswer{}, fmt.Errorf("%w: session not started", domain.ErrInvalidState)
	case domain.SessionFinished:
		return domain.SubmittedAnswer{}, domain.ErrSessionClosed
	}

	participant, ok := s.roster[nickname]
	if !ok {
		return domain.SubmittedAnswer{}, domain.ErrParticipantNotFound
	}
	question := s.quiz.Questions[s.current]
	if s.expiredLocked(question) {
		return domain.SubmittedAnswer{}, domain.ErrLateAnswer
	}
	if participant.AnsweredQuestion(s.current) {
		return domain.SubmittedAnswer{}, domain.ErrAlreadyAnswered
	}
	answer, ok := question.Answer(answerID)
	if !ok {
		return domain.SubmittedAnswer{}, fmt.Errorf("%w: %q", domain.ErrAnswerNotFound, answerID)
	}

	now := s.now()
	submitted := domain.SubmittedAnswer{
		QuestionIndex: s.current,
		QuestionID:    question.ID,
		AnswerID:      answer.ID,
		Correct:       answer.Correct,
		At:            now,
	}
	if answer.Correct {
		submitted.Awarded = 1
		participant.Score++
		participant.LastUpdated = now
	}
	participant.Answers = append(participant.Answers, submitted)

	s.settleLocked()
	s.publishResultsLocked()
	return submitted, nil
}

// expire is the timer trigger for the question at index. It advances at most
// once: a stale or repeated trigger finds the question already moved on.
func (s *Session) expire(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SessionRunning || s.current != index {
		return false
	}
	s.advanceLocked()
	s.settleLocked()
	s.publishResultsLocked()
	return true
}

func (s *Session) openQuestionLocked() {
	s.questionStarted = s.now()
	s.stopTimer = nil
	limit := s.quiz.Questions[s.current].TimeLimit()
	if limit <= 0 {
		return
	}
	index := s.current
	s.stopTimer = s.schedule(limit, func() { s.expire(index) })
}

func (s *Session) advanceLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	s.current++
	if s.current >= len(s.quiz.Questions) {
		s.finishLocked()
		return
	}
	s.openQuestionLocked()
}

// settleLocked advances past every question all participants have answered.
// A session nobody has joined yet waits for the question timer.
func (s *Session) settleLocked() bool {
	advanced := false
	for s.state == domain.SessionRunning && s.allAnsweredLocked() {
		s.advanceLocked()
		advanced = true
	}
	return advanced
}

func (s *Session) finishLocked() {
	s.state = domain.SessionFinished
	s.finishedAt = s.now()
	s.current = len(s.quiz.Questions)
}

func (s *Session) allAnsweredLocked() bool {
	if len(s.roster) == 0 {
		return false
	}
	for _, p := range s.roster {
		if !p.AnsweredQuestion(s.current) {
			return false
		}
	}
	return true
}

func (s *Session) expiredLocked(q domain.Question) bool {
	limit := q.TimeLimit()
	return limit > 0 && s.now().Sub(s.questionStarted) >= limit
}

func (s *Session) publishResultsLocked() {
	s.events.Publish(s.id, domain.ResultsUpdatedEvent{
		SessionID:     s.id,
		Participants:  s.leaderboardLocked(),
		QuestionIndex: s.current,
		Finished:      s.state == domain.SessionFinished,
	})
}

// rosterLocked lists participants in admission order.
func (s *Session) rosterLocked() []domain.ParticipantScore {
	out := make([]domain.ParticipantScore, 0, len(s.order))
	for _, nick := range s.order {
		out = append(out, domain.ParticipantScore{Nickname: nick, Score: s.roster[nick].Score})
	}
	return out
}

// leaderboardLocked orders by score desc, then who reached the score first, then nickname.
func (s *Session) leaderboardLocked() []domain.ParticipantScore {
	entries := s.rosterLocked()
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi, pj := s.roster[entries[i].Nickname], s.roster[entries[j].Nickname]
		if !pi.LastUpdated.Equal(pj.LastUpdated) {
			return pi.LastUpdated.Before(pj.LastUpdated)
		}
		return entries[i].Nickname < entries[j].Nickname
	})
	return entries
}

// View returns a snapshot safe to hand to clients; correctness flags are omitted.
func (s *Session) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := domain.SessionView{
		ID:            s.id,
		QuizID:        s.quiz.ID,
		QuizName:      s.quiz.Name,
		State:         s.state,
		QuestionIndex: s.current,
		QuestionCount: len(s.quiz.Questions),
		Participants:  s.leaderboardLocked(),
		CreatedAt:     s.createdAt,
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		view.StartedAt = &started
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		view.FinishedAt = &finished
	}
	if s.state == domain.SessionRunning {
		q := s.quiz.Questions[s.current]
		qv := &domain.QuestionView{Index: s.current, ID: q.ID, Text: q.Text}
		for _, a := range q.Answers {
			qv.Answers = append(qv.Answers, domain.AnswerView{ID: a.ID, Text: a.Text})
		}
		if limit := q.TimeLimit(); limit > 0 {
			deadline := s.questionStarted.Add(limit)
			qv.Deadline = &deadline
			if remaining := deadline.Sub(s.now()); remaining > 0 {
				qv.Remaining = remaining.Seconds()
			}
		}
		view.CurrentQuestion = qv
	}
	return view
}

// Participant returns a copy of the named participant.
func (s *Session) Participant(nickname string) (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.roster[nickname]
	if !ok {
		return domain.Participant{}, false
	}
	cp := *p
	cp.Answers = append([]domain.SubmittedAnswer(nil), p.Answers...)
	return cp, true
}
