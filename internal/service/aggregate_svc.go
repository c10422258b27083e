package service

import (
	"math"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/signal"
)

// weightPrecision keeps weighted counters on a fixed decimal grid so that a
// retraction subtracting a stored amount lands exactly back where it started.
const weightPrecision = 1e6

// Vote is one change applied to a listing aggregate.
type Vote struct {
	Signal   signal.Type
	Delta    int
	Weighted float64
	Context  string
}

// SignalAggregator folds votes into AdRecord counters.
type SignalAggregator struct{}

func NewSignalAggregator() *SignalAggregator {
	return &SignalAggregator{}
}

// WeightedDelta computes delta * suspicion * trust * base weight. Reactions
// count one per person and ignore every multiplier.
func (a *SignalAggregator) WeightedDelta(sig signal.Type, delta int, suspicionMultiplier, trustWeight float64) float64 {
	if signal.IsReaction(sig) {
		return float64(delta)
	}
	return roundWeight(float64(delta) * suspicionMultiplier * trustWeight * signal.BaseWeight(sig))
}

// ApplyVote updates the record in place and returns it. Counters never go
// below zero; likes and dislikes stay out of the totals.
func (a *SignalAggregator) ApplyVote(rec *model.AdRecord, v Vote) *model.AdRecord {
	rec.EnsureMaps()
	cs := &rec.CommunitySignals

	switch v.Signal {
	case signal.Like:
		cs.VotesLike = max(cs.VotesLike+v.Delta, 0)
		return rec
	case signal.Dislike:
		cs.VotesDislike = max(cs.VotesDislike+v.Delta, 0)
		return rec
	}

	key := string(v.Signal)
	cs.Raw[key] = max(cs.Raw[key]+v.Delta, 0)
	cs.Weighted[key] = floorWeight(cs.Weighted[key] + v.Weighted)
	cs.TotalVotesRaw = max(cs.TotalVotesRaw+v.Delta, 0)
	cs.TotalVotesWeighted = floorWeight(cs.TotalVotesWeighted + v.Weighted)

	if v.Context != "" {
		tags := rec.ContextStats[key]
		if tags == nil {
			tags = make(map[string]float64)
			rec.ContextStats[key] = tags
		}
		tags[v.Context] = floorWeight(tags[v.Context] + v.Weighted)
	}
	return rec
}

func roundWeight(w float64) float64 {
	return math.Round(w*weightPrecision) / weightPrecision
}

func floorWeight(w float64) float64 {
	return math.Max(0, roundWeight(w))
}
