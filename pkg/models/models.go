package models

import "time"

// TrustTier classifies bond quality. Ordering is meaningful: higher tiers
// unlock wider resource visibility.
type TrustTier int

const (
	TierGhost TrustTier = iota
	TierStrut
	TierCoherent
	TierResonant
)

func (t TrustTier) String() string {
	switch t {
	case TierGhost:
		return "ghost"
	case TierStrut:
		return "strut"
	case TierCoherent:
		return "coherent"
	case TierResonant:
		return "resonant"
	default:
		return "unknown"
	}
}

type BondStatus string

const (
	BondStatusActive     BondStatus = "active"
	BondStatusTerminated BondStatus = "terminated"
)

// Partner identifies the remote side of a bond.
type Partner struct {
	NodeID      string `json:"node_id"`
	PublicKey   []byte `json:"public_key"`
	KeySequence uint8  `json:"key_sequence"`
}

// CareScoreComponents are recomputed from raw interaction counters on
// demand; none of the four values is stored authoritatively.
type CareScoreComponents struct {
	Frequency      float64 `json:"frequency"`
	Reciprocity    float64 `json:"reciprocity"`
	Consistency    float64 `json:"consistency"`
	Responsiveness float64 `json:"responsiveness"`
}

type TrustState struct {
	CareScore  float64             `json:"care_score"`
	Components CareScoreComponents `json:"components"`
	Tier       TrustTier           `json:"tier"`
}

type ChannelState struct {
	SharedSecret    []byte     `json:"-"`
	LastInteraction time.Time  `json:"last_interaction"`
	TotalExchanges  uint64     `json:"total_exchanges"`
	Status          BondStatus `json:"status"`
}

type Permissions struct {
	GrantedScopes []string `json:"granted_scopes"`
	Visibility    string   `json:"visibility"`
}

// BondRecord is the persistent result of a successful negotiation. The bond
// engine owns it exclusively; other components receive copies and may request
// wholesale replacement of the trust and channel sub-records.
type BondRecord struct {
	Partner     Partner      `json:"partner"`
	Trust       TrustState   `json:"trust"`
	Channel     ChannelState `json:"channel"`
	Permissions Permissions  `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ChannelMessage is a decrypted application message delivered to receive
// listeners.
type ChannelMessage struct {
	Type      uint8     `json:"type"`
	SenderID  string    `json:"sender_id"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}
