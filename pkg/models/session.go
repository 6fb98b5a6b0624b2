package models

import "time"

// Message is one entry in a collaboration session's log. Messages are kept
// in arrival order; timestamps are informational only.
type Message struct {
	// From is the participant that posted the message.
	From string `json:"from"`
	// Content is the message body.
	Content string `json:"content"`
	// Timestamp is when the coordinator appended the message.
	Timestamp time.Time `json:"timestamp"`
}

// Position is one participant's judgment about the work under discussion.
type Position struct {
	// Conclusion is the participant's stated outcome.
	Conclusion string `json:"conclusion"`
	// Confidence is how certain the participant is, in [0,1].
	Confidence float64 `json:"confidence"`
}

// Consensus is the aggregated result of a deliberation.
type Consensus struct {
	// AgreedPoints are conclusions shared by a strict majority of participants.
	AgreedPoints []string `json:"agreed_points"`
	// DisagreedPoints are conclusions held only by a minority.
	DisagreedPoints []string `json:"disagreed_points"`
	// Recommendation is the final call derived from the agreement score.
	Recommendation string `json:"recommendation"`
	// AgreementScore is the mean pairwise similarity of conclusions, in [0,1].
	AgreementScore float64 `json:"agreement_score"`
	// BuiltAt is when the consensus was computed.
	BuiltAt time.Time `json:"built_at"`
}

// Session represents a multi-agent discussion tied to a task. A session with
// a computed consensus is logically closed but remains queryable.
type Session struct {
	// ID is the unique, generated identifier for this session.
	ID string `json:"id"`
	// TaskID is the task under discussion.
	TaskID string `json:"task_id"`
	// Participants are the agent IDs allowed to post.
	Participants []string `json:"participants"`
	// Messages is the ordered discussion log.
	Messages []Message `json:"messages"`
	// Consensus is the computed result, nil until built.
	Consensus *Consensus `json:"consensus,omitempty"`
	// CreatedAt is when the session was opened.
	CreatedAt time.Time `json:"created_at"`
}

// HasParticipant reports whether the given agent is part of the session.
func (s *Session) HasParticipant(agentID string) bool {
	for _, p := range s.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}
