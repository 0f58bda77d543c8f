package domain

import "encoding/json"

// EventType names a QuizEvent variant on the wire.
type EventType string

const (
	EventParticipantsUpdated EventType = "participantsUpdated"
	EventResultsUpdated      EventType = "resultsUpdated"
)

// QuizEvent is the closed set of session state-change notifications.
// Only types in this package implement it.
type QuizEvent interface {
	Type() EventType
	Session() string
	quizEvent()
}

// ParticipantsUpdatedEvent carries the full roster after an admission.
type ParticipantsUpdatedEvent struct {
	SessionID    string             `json:"sessionId"`
	Participants []ParticipantScore `json:"participants"`
}

func (ParticipantsUpdatedEvent) Type() EventType   { return EventParticipantsUpdated }
func (e ParticipantsUpdatedEvent) Session() string { return e.SessionID }
func (ParticipantsUpdatedEvent) quizEvent()        {}

// ResultsUpdatedEvent carries the scoreboard after a start, a scored answer or a question change.
type ResultsUpdatedEvent struct {
	SessionID     string             `json:"sessionId"`
	Participants  []ParticipantScore `json:"participants"`
	QuestionIndex int                `json:"questionIndex"`
	Finished      bool               `json:"finished"`
}

func (ResultsUpdatedEvent) Type() EventType   { return EventResultsUpdated }
func (e ResultsUpdatedEvent) Session() string { return e.SessionID }
func (ResultsUpdatedEvent) quizEvent()        {}

// Envelope is the {type, payload} framing used by every outbound transport.
type Envelope[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// MarshalEvent encodes an event inside its envelope.
func MarshalEvent(e QuizEvent) ([]byte, error) {
	return json.Marshal(Envelope[QuizEvent]{Type: string(e.Type()), Payload: e})
}
