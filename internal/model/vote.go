package model

// VoteRequest is the API request body for casting or retracting a signal.
type VoteRequest struct {
	ListingID  string `json:"listingId"`
	SignalType string `json:"signalType"`
	Delta      int    `json:"delta"`
	Context    string `json:"context,omitempty"`
}

// Denial codes returned in VoteResult.Code.
const (
	DenyVoteCap  = "VOTE_CAP_REACHED"
	DenyRate     = "RATE_LIMITED"
	DenyCooldown = "COOLDOWN_ACTIVE"
	DenyConflict = "CONFLICT_DETECTED"
)

// VoteResult is the outcome of one pipeline run. Denials are values, not errors.
type VoteResult struct {
	Allowed          bool      `json:"allowed"`
	Code             string    `json:"code,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	RemainingSeconds int       `json:"remainingSeconds,omitempty"`
	ConflictWith     string    `json:"conflictWith,omitempty"`
	Changed          bool      `json:"changed"`
	Persisted        bool      `json:"persisted"`
	Record           *AdRecord `json:"record,omitempty"`
}

// Qualitative verdict labels.
const (
	StateAttention   = "Attention Required"
	StatePending     = "Pending Validation"
	StateConsistent  = "Consistent Pattern"
	StateObservation = "Under Observation"
)

// Explanation is one human-readable reason behind a verdict.
type Explanation struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ScoreExplanation is a read-only projection of a record for display.
type ScoreExplanation struct {
	ListingID       string        `json:"listingId"`
	RiskScore       int           `json:"risk_score"`
	QualityScore    int           `json:"quality_score"`
	ConfidenceScore int           `json:"confidence_score"`
	State           string        `json:"state"`
	Tone            string        `json:"tone"`
	Description     string        `json:"description"`
	Explanations    []Explanation `json:"explanations"`
}
