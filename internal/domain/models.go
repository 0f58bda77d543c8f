package domain

import (
	"fmt"
	"time"
)

// Answer is one selectable option of a question.
type Answer struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question models a question with a per-question answer time limit.
type Question struct {
	ID               string   `json:"id" yaml:"id"`
	Text             string   `json:"text" yaml:"text"`
	TimeLimitSeconds int      `json:"timeLimitSeconds" yaml:"time_limit_seconds"` // zero means no limit
	Answers          []Answer `json:"answers" yaml:"answers"`
}

// TimeLimit returns the answer window, or zero when the question is untimed.
func (q Question) TimeLimit() time.Duration {
	if q.TimeLimitSeconds <= 0 {
		return 0
	}
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Answer looks up an answer of this question by ID.
func (q Question) Answer(id string) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}

// Quiz is an immutable quiz definition. Sessions copy it on creation.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Owner     string     `json:"owner" yaml:"owner"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Validate checks the structural invariants of a quiz definition.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	for i, question := range q.Questions {
		if len(question.Answers) == 0 {
			return fmt.Errorf("%w: question %d has no answers", ErrInvalidQuiz, i)
		}
		seen := make(map[string]struct{}, len(question.Answers))
		for _, a := range question.Answers {
			if _, dup := seen[a.ID]; dup {
				return fmt.Errorf("%w: question %d repeats answer %q", ErrInvalidQuiz, i, a.ID)
			}
			seen[a.ID] = struct{}{}
		}
	}
	return nil
}

// SessionState is the lifecycle phase of a session.
type SessionState string

const (
	SessionCreated  SessionState = "CREATED"
	SessionRunning  SessionState = "RUNNING"
	SessionFinished SessionState = "FINISHED"
)

// SubmittedAnswer records one accepted submission of a participant.
type SubmittedAnswer struct {
	QuestionIndex int       `json:"questionIndex"`
	QuestionID    string    `json:"questionId"`
	AnswerID      string    `json:"answerId"`
	Correct       bool      `json:"correct"`
	Awarded       int       `json:"awarded"`
	At            time.Time `json:"at"`
}

// Participant is a nicknamed entrant of a session and their accumulated score.
type Participant struct {
	Nickname    string
	Score       int
	Answers     []SubmittedAnswer
	JoinedAt    time.Time
	LastUpdated time.Time
}

// AnsweredQuestion reports whether the participant already answered the question at index.
func (p *Participant) AnsweredQuestion(index int) bool {
	n := len(p.Answers)
	return n > 0 && p.Answers[n-1].QuestionIndex == index
}

// ParticipantScore is the snapshot-friendly view of a participant.
type ParticipantScore struct {
	Nickname string `json:"nickName"`
	Score    int    `json:"score"`
}

// AnswerView is an answer without its correctness flag.
type AnswerView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the public view of the current question.
type QuestionView struct {
	Index     int          `json:"index"`
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Answers   []AnswerView `json:"answers"`
	Deadline  *time.Time   `json:"deadline,omitempty"`
	Remaining float64      `json:"remainingSeconds,omitempty"`
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID              string             `json:"sessionId"`
	QuizID          string             `json:"quizId"`
	QuizName        string             `json:"quizName"`
	State           SessionState       `json:"state"`
	QuestionIndex   int                `json:"questionIndex"`
	QuestionCount   int                `json:"questionCount"`
	CurrentQuestion *QuestionView      `json:"currentQuestion,omitempty"`
	Participants    []ParticipantScore `json:"participants"`
	CreatedAt       time.Time          `json:"createdAt"`
	StartedAt       *time.Time         `json:"startedAt,omitempty"`
	FinishedAt      *time.Time         `json:"finishedAt,omitempty"`
}
