package model

import "time"

// MaxTrustEvents bounds the per-reporter reputation history.
const MaxTrustEvents = 50

// TrustEvent is one reputation-affecting action.
type TrustEvent struct {
	Kind  string    `json:"kind"`
	Delta float64   `json:"delta"`
	At    time.Time `json:"at"`
}

// TrustState is the persisted reputation of one reporter device.
type TrustState struct {
	ReporterID   string       `json:"reporterId"`
	Weight       float64      `json:"weight"`
	Events       []TrustEvent `json:"events"`
	LastActionAt time.Time    `json:"lastActionAt"`
}

// Push appends an event, dropping the oldest once the buffer is full.
func (s *TrustState) Push(e TrustEvent) {
	s.Events = append(s.Events, e)
	if over := len(s.Events) - MaxTrustEvents; over > 0 {
		s.Events = append([]TrustEvent(nil), s.Events[over:]...)
	}
	s.LastActionAt = e.At
}

// ActiveVote remembers what a cast contributed so that retracting it removes
// exactly the same amount.
type ActiveVote struct {
	Weighted float64   `json:"weighted"`
	Context  string    `json:"context,omitempty"`
	CastAt   time.Time `json:"castAt"`
}

// VoteLedger is one reporter's set of active signals on one listing.
type VoteLedger struct {
	ReporterID   string                `json:"reporterId"`
	ListingID    string                `json:"listingId"`
	Active       map[string]ActiveVote `json:"active"`
	Participated bool                  `json:"participated"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// NewVoteLedger returns an empty ledger.
func NewVoteLedger(reporterID, listingID string) *VoteLedger {
	return &VoteLedger{
		ReporterID: reporterID,
		ListingID:  listingID,
		Active:     make(map[string]ActiveVote),
	}
}

// ReporterResponse is the API response for reporter status.
type ReporterResponse struct {
	ReporterID       string   `json:"reporterId"`
	TrustWeight      float64  `json:"trustWeight"`
	RecentEvents     int      `json:"recentEvents"`
	DaysInactive     int      `json:"daysInactive"`
	SuspicionLevel   float64  `json:"suspicionLevel"`
	BotLike          bool     `json:"botLike"`
	SuspicionReasons []string `json:"suspicionReasons"`
	ReportsCast      int      `json:"reportsCast"`
	WeightMultiplier float64  `json:"weightMultiplier"`
}

// StatsResponse is the API response for global statistics.
type StatsResponse struct {
	TotalListings     int `json:"totalListings"`
	TotalReporters    int `json:"totalReporters"`
	TotalVotes        int `json:"totalVotes"`
	AttentionRequired int `json:"attentionRequired"`
	ActiveListings24h int `json:"activeListings24h"`
}

// SyncDeltaResponse is the API response for delta sync.
type SyncDeltaResponse struct {
	Listings      []*AdRecord `json:"listings"`
	SyncTimestamp string      `json:"syncTimestamp"`
}
