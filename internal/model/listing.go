package model

import (
	"math"
	"time"
)

// Structural analyzer output is bounded to this range.
const (
	MinScoreAdjustment = -80
	MaxScoreAdjustment = 15
)

// AdRecord is the per-listing aggregate: community votes, externally supplied
// metrics, and the scores derived from them.
type AdRecord struct {
	ListingID        string                        `json:"listingId"`
	FirstSeen        time.Time                     `json:"first_seen"`
	LastSeen         time.Time                     `json:"last_seen"`
	CommunitySignals CommunitySignals              `json:"community_signals"`
	NativeSignals    NativeSignals                 `json:"native_signals"`
	BehaviorSignals  BehaviorSignals               `json:"behavior_signals"`
	AdSignals        AdSignals                     `json:"ad_signals"`
	UserSignals      UserSignals                   `json:"user_signals"`
	RiskScore        int                           `json:"risk_score"`
	QualityScore     int                           `json:"quality_score"`
	ConfidenceScore  int                           `json:"confidence_score"`
	State            string                        `json:"state"`
	ContextStats     map[string]map[string]float64 `json:"context_stats"`
}

// CommunitySignals holds the two parallel counters per signal. Likes and
// dislikes are counted apart so they never dilute percentage scoring.
type CommunitySignals struct {
	Raw                map[string]int     `json:"raw"`
	Weighted           map[string]float64 `json:"weighted"`
	TotalVotesRaw      int                `json:"total_votes_raw"`
	TotalVotesWeighted float64            `json:"total_votes_weighted"`
	VotesLike          int                `json:"votes_like"`
	VotesDislike       int                `json:"votes_dislike"`
	UsersCount         int                `json:"users_count"`
}

// NativeSignals are counters published by the listing site itself.
type NativeSignals struct {
	Views    int        `json:"views"`
	Saves    int        `json:"saves"`
	ListedAt *time.Time `json:"listed_at,omitempty"`
}

// BehaviorSignals aggregate visitor sessions. AvgTimeOnPage is in milliseconds.
type BehaviorSignals struct {
	TotalVisits         int     `json:"total_visits"`
	AbandonFastCount    int     `json:"abandon_fast_count"`
	ContactOpenCount    int     `json:"contact_open_count"`
	CopyContactCount    int     `json:"copy_contact_count"`
	ScrollCompleteCount int     `json:"scroll_complete_count"`
	AvgTimeOnPage       float64 `json:"avg_time_on_page"`
}

// AdSignals is the structural analyzer's verdict on the listing content.
type AdSignals struct {
	ScoreAdjustment int      `json:"score_adjustment"`
	Reasons         []string `json:"reasons,omitempty"`
}

// UserSignals are legacy device-local reports, read but never written here.
type UserSignals struct {
	AdvancePayment int `json:"advance_payment"`
}

// NewAdRecord returns the zeroed record for a listing seen for the first time.
func NewAdRecord(listingID string, now time.Time) *AdRecord {
	return &AdRecord{
		ListingID: listingID,
		FirstSeen: now,
		LastSeen:  now,
		CommunitySignals: CommunitySignals{
			Raw:      make(map[string]int),
			Weighted: make(map[string]float64),
		},
		ContextStats: make(map[string]map[string]float64),
	}
}

// EnsureMaps allocates any nil map so decoded records can be mutated safely.
func (r *AdRecord) EnsureMaps() {
	if r.CommunitySignals.Raw == nil {
		r.CommunitySignals.Raw = make(map[string]int)
	}
	if r.CommunitySignals.Weighted == nil {
		r.CommunitySignals.Weighted = make(map[string]float64)
	}
	if r.ContextStats == nil {
		r.ContextStats = make(map[string]map[string]float64)
	}
}

// Clone returns a deep copy.
func (r *AdRecord) Clone() *AdRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.CommunitySignals.Raw = make(map[string]int, len(r.CommunitySignals.Raw))
	for k, v := range r.CommunitySignals.Raw {
		c.CommunitySignals.Raw[k] = v
	}
	c.CommunitySignals.Weighted = make(map[string]float64, len(r.CommunitySignals.Weighted))
	for k, v := range r.CommunitySignals.Weighted {
		c.CommunitySignals.Weighted[k] = v
	}
	c.ContextStats = make(map[string]map[string]float64, len(r.ContextStats))
	for sig, tags := range r.ContextStats {
		inner := make(map[string]float64, len(tags))
		for k, v := range tags {
			inner[k] = v
		}
		c.ContextStats[sig] = inner
	}
	if r.NativeSignals.ListedAt != nil {
		t := *r.NativeSignals.ListedAt
		c.NativeSignals.ListedAt = &t
	}
	if r.AdSignals.Reasons != nil {
		c.AdSignals.Reasons = append([]string(nil), r.AdSignals.Reasons...)
	}
	return &c
}

// MetricsUpdate carries externally supplied counters. Nil sub-objects and
// nil fields are left untouched on merge.
type MetricsUpdate struct {
	NativeSignals   *NativePatch   `json:"native_signals,omitempty"`
	BehaviorSignals *BehaviorPatch `json:"behavior_signals,omitempty"`
	AdSignals       *AdPatch       `json:"ad_signals,omitempty"`
	UserSignals     *UserPatch     `json:"user_signals,omitempty"`
}

type NativePatch struct {
	Views    *int       `json:"views,omitempty"`
	Saves    *int       `json:"saves,omitempty"`
	ListedAt *time.Time `json:"listed_at,omitempty"`
}

type BehaviorPatch struct {
	TotalVisits         *int     `json:"total_visits,omitempty"`
	AbandonFastCount    *int     `json:"abandon_fast_count,omitempty"`
	ContactOpenCount    *int     `json:"contact_open_count,omitempty"`
	CopyContactCount    *int     `json:"copy_contact_count,omitempty"`
	ScrollCompleteCount *int     `json:"scroll_complete_count,omitempty"`
	AvgTimeOnPage       *float64 `json:"avg_time_on_page,omitempty"`
}

type AdPatch struct {
	ScoreAdjustment *int     `json:"score_adjustment,omitempty"`
	Reasons         []string `json:"reasons,omitempty"`
}

type UserPatch struct {
	AdvancePayment *int `json:"advance_payment,omitempty"`
}

// Empty reports whether the update carries no sub-object at all.
func (u MetricsUpdate) Empty() bool {
	return u.NativeSignals == nil && u.BehaviorSignals == nil && u.AdSignals == nil && u.UserSignals == nil
}

// Merge folds the update into the record field by field. Counters are
// floored at zero and the structural adjustment is clamped to its range.
func (r *AdRecord) Merge(u MetricsUpdate) {
	if p := u.NativeSignals; p != nil {
		setCount(&r.NativeSignals.Views, p.Views)
		setCount(&r.NativeSignals.Saves, p.Saves)
		if p.ListedAt != nil {
			t := *p.ListedAt
			r.NativeSignals.ListedAt = &t
		}
	}
	if p := u.BehaviorSignals; p != nil {
		b := &r.BehaviorSignals
		setCount(&b.TotalVisits, p.TotalVisits)
		setCount(&b.AbandonFastCount, p.AbandonFastCount)
		setCount(&b.ContactOpenCount, p.ContactOpenCount)
		setCount(&b.CopyContactCount, p.CopyContactCount)
		setCount(&b.ScrollCompleteCount, p.ScrollCompleteCount)
		if p.AvgTimeOnPage != nil && !math.IsNaN(*p.AvgTimeOnPage) {
			b.AvgTimeOnPage = math.Max(0, *p.AvgTimeOnPage)
		}
	}
	if p := u.AdSignals; p != nil {
		if p.ScoreAdjustment != nil {
			r.AdSignals.ScoreAdjustment = ClampAdjustment(*p.ScoreAdjustment)
		}
		if p.Reasons != nil {
			r.AdSignals.Reasons = append([]string(nil), p.Reasons...)
		}
	}
	if p := u.UserSignals; p != nil {
		setCount(&r.UserSignals.AdvancePayment, p.AdvancePayment)
	}
}

// ClampAdjustment bounds a structural score adjustment to [-80, +15].
func ClampAdjustment(v int) int {
	return min(max(v, MinScoreAdjustment), MaxScoreAdjustment)
}

func setCount(dst *int, v *int) {
	if v != nil {
		*dst = max(*v, 0)
	}
}

// Visit is one finished browsing session on a listing page, reported by the
// page collaborator when the visitor leaves.
type Visit struct {
	TimeOnPage      float64 `json:"timeOnPage"`
	FastAbandon     bool    `json:"isFastAbandon"`
	OpenedContact   bool    `json:"hasOpenedContact"`
	CopiedContact   bool    `json:"hasCopiedContact"`
	CompletedScroll bool    `json:"hasCompletedScroll"`
}

// FoldVisit adds one visit to the behavior aggregate, keeping a running
// average of time on page rounded to whole milliseconds.
func (b *BehaviorSignals) FoldVisit(v Visit) {
	b.TotalVisits++
	if v.FastAbandon {
		b.AbandonFastCount++
	}
	if v.OpenedContact {
		b.ContactOpenCount++
	}
	if v.CopiedContact {
		b.CopyContactCount++
	}
	if v.CompletedScroll {
		b.ScrollCompleteCount++
	}
	prevTotal := b.AvgTimeOnPage * float64(b.TotalVisits-1)
	b.AvgTimeOnPage = math.Round((prevTotal + math.Max(0, v.TimeOnPage)) / float64(b.TotalVisits))
}
