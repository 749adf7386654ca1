package models

// Gender is a user's own gender as stored in the directory.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// TargetGender is the gender a user wants their random-chat partner to have.
type TargetGender string

const (
	TargetAny    TargetGender = "any"
	TargetMale   TargetGender = "male"
	TargetFemale TargetGender = "female"
)

// Accepts reports whether a partner of gender g satisfies the preference t.
// An unset gender never satisfies a concrete preference.
func (t TargetGender) Accepts(g Gender) bool {
	if t == TargetAny {
		return g != GenderUnset
	}
	return string(t) == string(g)
}

// EndReason describes why a chat session was terminated.
type EndReason string

const (
	EndReasonUser        EndReason = "USER_ENDED"
	EndReasonNext        EndReason = "NEXT"
	EndReasonTimeout     EndReason = "TIMEOUT"
	EndReasonPeerBlocked EndReason = "PEER_BLOCKED"
	EndReasonShutdown    EndReason = "SHUTDOWN"
)

// MatchResult is the outcome of a random-chat or "next" request.
// Matched=false with an empty PartnerID means the requester was enqueued.
type MatchResult struct {
	Matched   bool   `json:"matched"`
	PartnerID string `json:"partner_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// RelayMessage is the payload carried between two session participants,
// and also the envelope for system notices pushed to a single peer.
type RelayMessage struct {
	SenderID  string `json:"sender_id"`
	SessionID string `json:"session_id"`

	// Type is "text", a media kind ("photo", "video", "voice", "video_note",
	// "sticker", "animation", "document", "audio") or a system notice
	// ("system_match_found", "system_chat_ended", "system_search_started",
	// "system_search_timeout", "system_info").
	Type string `json:"type"`

	// Content holds the message text, or the Telegram file ID for media.
	Content string `json:"content"`

	// Metadata holds the caption for media messages.
	Metadata string `json:"metadata,omitempty"`

	// Reason is set on "system_chat_ended" notices.
	Reason EndReason `json:"reason,omitempty"`
}
