package domain

import "time"

// EventType names a sync channel event.
type EventType string

const (
	EventPlayerAnswer     EventType = "player_answer"
	EventQuestionRevealed EventType = "question_revealed"
	EventQuestionAdvanced EventType = "question_advanced"
	EventMatchCompleted   EventType = "match_completed"
	EventPeerDisconnected EventType = "peer_disconnected"
	EventPeerReconnected  EventType = "peer_reconnected"
	EventPlayerReady      EventType = "player_ready"
)

// Event is a sequence-numbered, state-changing message for every party of a match.
type Event struct {
	Type    EventType `json:"type"`
	MatchID string    `json:"matchId"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// PlayerAnsweredPayload tells peers someone answered without revealing the content.
type PlayerAnsweredPayload struct {
	PlayerID      string `json:"playerId"`
	QuestionIndex int    `json:"questionIndex"`
}

// QuestionRevealedPayload is broadcast once per question.
type QuestionRevealedPayload struct {
	QuestionIndex    int                `json:"questionIndex"`
	CorrectAnswer    string             `json:"correctAnswer"`
	PerPlayerAnswers map[string]*string `json:"perPlayerAnswers"`
	Score            Score              `json:"score"`
	TimedOut         bool               `json:"timedOut"`
}

// QuestionAdvancedPayload starts a question on every client.
type QuestionAdvancedPayload struct {
	QuestionIndex   int            `json:"questionIndex"`
	TimePerQuestion int64          `json:"timePerQuestion"` // milliseconds
	Question        PublicQuestion `json:"question"`
}

// MatchCompletedPayload closes the match.
type MatchCompletedPayload struct {
	Status  Phase                   `json:"status"`
	Score   Score                   `json:"score"`
	Rewards map[string]RewardResult `json:"rewards"`
	Reason  string                  `json:"reason,omitempty"`
}

// PeerPayload reports connectivity or readiness of a player.
type PeerPayload struct {
	PlayerID string `json:"playerId"`
}

// AnswerSubmission is an inbound player_answer message.
type AnswerSubmission struct {
	Seq             uint64 `json:"seq"`
	QuestionIndex   int    `json:"questionIndex"`
	Answer          string `json:"answer"`
	ClientElapsedMs int64  `json:"clientElapsedMs"`
}
