package service

import (
	"testing"
	"time"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/signal"
)

func TestWeightedDelta(t *testing.T) {
	a := NewSignalAggregator()

	tests := []struct {
		name       string
		sig        signal.Type
		delta      int
		multiplier float64
		trust      float64
		want       float64
	}{
		{"critical first report", sigAdvance, 1, 1.0, 1.0, 1.5},
		{"warning signal", sigPressure, 1, 1.0, 1.0, 1.2},
		{"positive signal", sigVisit, 1, 1.0, 1.0, 1.0},
		{"other signal", signal.Type("votes_no_docs"), 1, 1.0, 1.0, 0.8},
		{"trusted reporter later in session", sigAdvance, 1, 0.8, 1.2, 1.44},
		{"retraction", sigAdvance, -1, 1.0, 1.0, -1.5},
		{"like ignores multipliers", signal.Like, 1, 0.1, 0.6, 1},
		{"dislike retraction", signal.Dislike, -1, 0.1, 0.6, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.WeightedDelta(tt.sig, tt.delta, tt.multiplier, tt.trust)
			if !approx(got, tt.want) {
				t.Errorf("WeightedDelta = %.6f, want %.6f", got, tt.want)
			}
		})
	}
}

func TestApplyVote_RetractCancelsCast(t *testing.T) {
	a := NewSignalAggregator()
	rec := model.NewAdRecord("L1", time.Now())

	a.ApplyVote(rec, Vote{Signal: sigVisit, Delta: 1, Weighted: 1.0})

	w := a.WeightedDelta(sigDocsOK, 1, 0.8, 1.01)
	a.ApplyVote(rec, Vote{Signal: sigDocsOK, Delta: 1, Weighted: w, Context: "in_person"})
	a.ApplyVote(rec, Vote{Signal: sigDocsOK, Delta: -1, Weighted: -w, Context: "in_person"})

	cs := rec.CommunitySignals
	if cs.Raw[string(sigDocsOK)] != 0 || cs.Weighted[string(sigDocsOK)] != 0 {
		t.Errorf("docs_ok counters = %d / %v, want 0 / 0", cs.Raw[string(sigDocsOK)], cs.Weighted[string(sigDocsOK)])
	}
	if cs.TotalVotesRaw != 1 || cs.TotalVotesWeighted != 1.0 {
		t.Errorf("totals = %d / %v, want 1 / 1.0", cs.TotalVotesRaw, cs.TotalVotesWeighted)
	}
	if got := rec.ContextStats[string(sigDocsOK)]["in_person"]; got != 0 {
		t.Errorf("context stat = %v, want 0", got)
	}
}

func TestApplyVote_FloorsAtZero(t *testing.T) {
	a := NewSignalAggregator()
	rec := model.NewAdRecord("L1", time.Now())

	a.ApplyVote(rec, Vote{Signal: sigAdvance, Delta: -1, Weighted: -1.5})
	a.ApplyVote(rec, Vote{Signal: signal.Dislike, Delta: -1, Weighted: -1})

	cs := rec.CommunitySignals
	if cs.Raw[string(sigAdvance)] != 0 || cs.Weighted[string(sigAdvance)] != 0 {
		t.Errorf("signal counters went negative: %d / %v", cs.Raw[string(sigAdvance)], cs.Weighted[string(sigAdvance)])
	}
	if cs.TotalVotesRaw != 0 || cs.TotalVotesWeighted != 0 || cs.VotesDislike != 0 {
		t.Errorf("totals went negative: %+v", cs)
	}
}

func TestApplyVote_ReactionsStayOutOfTotals(t *testing.T) {
	a := NewSignalAggregator()
	rec := model.NewAdRecord("L1", time.Now())

	a.ApplyVote(rec, Vote{Signal: signal.Like, Delta: 1, Weighted: 1})
	a.ApplyVote(rec, Vote{Signal: signal.Like, Delta: 1, Weighted: 1})
	a.ApplyVote(rec, Vote{Signal: signal.Dislike, Delta: 1, Weighted: 1})

	cs := rec.CommunitySignals
	if cs.VotesLike != 2 || cs.VotesDislike != 1 {
		t.Errorf("likes/dislikes = %d/%d, want 2/1", cs.VotesLike, cs.VotesDislike)
	}
	if cs.TotalVotesRaw != 0 || cs.TotalVotesWeighted != 0 {
		t.Errorf("reactions leaked into totals: %d / %v", cs.TotalVotesRaw, cs.TotalVotesWeighted)
	}
	if len(cs.Raw) != 0 || len(cs.Weighted) != 0 {
		t.Errorf("reactions leaked into per-signal maps: %v %v", cs.Raw, cs.Weighted)
	}
}

func TestApplyVote_ContextStats(t *testing.T) {
	a := NewSignalAggregator()
	rec := model.NewAdRecord("L1", time.Now())

	a.ApplyVote(rec, Vote{Signal: sigAdvance, Delta: 1, Weighted: 1.5, Context: "mbway"})
	a.ApplyVote(rec, Vote{Signal: sigAdvance, Delta: 1, Weighted: 1.2, Context: "mbway"})
	a.ApplyVote(rec, Vote{Signal: sigAdvance, Delta: 1, Weighted: 0.9})

	if got := rec.ContextStats[string(sigAdvance)]["mbway"]; !approx(got, 2.7) {
		t.Errorf("mbway context weight = %v, want 2.7", got)
	}
	if got := len(rec.ContextStats[string(sigAdvance)]); got != 1 {
		t.Errorf("context tags = %d, want 1", got)
	}
}
