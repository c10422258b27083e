package service

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

// recordWith builds a record whose weighted counters equal the given raw
// counts, one unit of weight per vote.
func recordWith(votes map[string]int, users int) *model.AdRecord {
	rec := model.NewAdRecord("L1", time.Now())
	cs := &rec.CommunitySignals
	for k, n := range votes {
		cs.Raw[k] = n
		cs.Weighted[k] = float64(n)
		cs.TotalVotesRaw += n
		cs.TotalVotesWeighted += float64(n)
	}
	cs.UsersCount = users
	return rec
}

func TestScoreEngine_SingleCriticalReport(t *testing.T) {
	rec := model.NewAdRecord("L1", time.Now())
	rec.CommunitySignals.Raw[string(sigAdvance)] = 1
	rec.CommunitySignals.Weighted[string(sigAdvance)] = 1.5
	rec.CommunitySignals.TotalVotesRaw = 1
	rec.CommunitySignals.TotalVotesWeighted = 1.5
	rec.CommunitySignals.UsersCount = 1

	s := NewScoreEngine(zerolog.Nop()).Compute(rec)
	if s.Risk != 0 {
		t.Errorf("Risk = %d, want 0", s.Risk)
	}
	if s.Quality != 0 {
		t.Errorf("Quality = %d, want 0", s.Quality)
	}
	if s.State != model.StateAttention || s.Tone != ToneRed {
		t.Errorf("State = %q (%s), want %q (red)", s.State, s.Tone, model.StateAttention)
	}
}

func TestScoreEngine_TenPositiveReporters(t *testing.T) {
	rec := recordWith(map[string]int{string(sigVisit): 10}, 10)

	s := NewScoreEngine(zerolog.Nop()).Compute(rec)
	if s.Risk != 100 {
		t.Errorf("Risk = %d, want 100", s.Risk)
	}
	if s.Quality != 80 {
		t.Errorf("Quality = %d, want 80", s.Quality)
	}
	if s.Confidence != 60 {
		t.Errorf("Confidence = %d, want 60", s.Confidence)
	}
	if s.State != model.StateConsistent {
		t.Errorf("State = %q, want %q", s.State, model.StateConsistent)
	}
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*model.AdRecord)
		want  int
	}{
		{"untouched listing", func(*model.AdRecord) {}, 100},
		{"structural deduction", func(r *model.AdRecord) { r.AdSignals.ScoreAdjustment = -30 }, 70},
		{"structural bonus capped", func(r *model.AdRecord) { r.AdSignals.ScoreAdjustment = 40 }, 100},
		{"structural deduction clamped", func(r *model.AdRecord) { r.AdSignals.ScoreAdjustment = -200 }, 20},
		{"legacy advance payment report", func(r *model.AdRecord) { r.UserSignals.AdvancePayment = 1 }, 50},
		{"two dislikes", func(r *model.AdRecord) { r.CommunitySignals.VotesDislike = 2 }, 94},
		{"dislike penalty capped", func(r *model.AdRecord) { r.CommunitySignals.VotesDislike = 40 }, 85},
		{"half the weight on a warning", func(r *model.AdRecord) {
			cs := &r.CommunitySignals
			cs.Weighted[string(sigPressure)] = 1
			cs.Weighted[string(sigVisit)] = 1
			cs.TotalVotesWeighted = 2
		}, 80},
		{"floored at zero", func(r *model.AdRecord) {
			r.AdSignals.ScoreAdjustment = -80
			r.UserSignals.AdvancePayment = 1
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := model.NewAdRecord("L1", time.Now())
			tt.setup(rec)
			if got := RiskScore(rec); got != tt.want {
				t.Errorf("RiskScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*model.AdRecord)
		risk  int
		want  int
	}{
		{"camouflage floor zeroes quality", func(r *model.AdRecord) { r.NativeSignals.Saves = 10 }, 59, 0},
		{"saves bonus", func(r *model.AdRecord) { r.NativeSignals.Saves = 3 }, 100, 6},
		{"saves bonus capped", func(r *model.AdRecord) { r.NativeSignals.Saves = 50 }, 100, 20},
		{"high views", func(r *model.AdRecord) { r.NativeSignals.Views = 1001 }, 100, 5},
		{"likes capped", func(r *model.AdRecord) { r.CommunitySignals.VotesLike = 9 }, 100, 10},
		{"everything", func(r *model.AdRecord) {
			r.NativeSignals.Saves = 50
			r.NativeSignals.Views = 5000
			r.CommunitySignals.VotesLike = 9
			r.CommunitySignals.Weighted[string(sigVisit)] = 2
			r.CommunitySignals.TotalVotesWeighted = 2
		}, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := model.NewAdRecord("L1", time.Now())
			tt.setup(rec)
			if got := QualityScore(rec, tt.risk); got != tt.want {
				t.Errorf("QualityScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name   string
		votes  int
		views  int
		timeMs float64
		want   int
	}{
		{"no data", 0, 0, 0, 0},
		{"a couple of votes", 2, 0, 0, 10},
		{"a handful of votes", 4, 0, 0, 30},
		{"ten votes", 10, 0, 0, 60},
		{"medium views", 0, 301, 0, 10},
		{"long reads", 0, 0, 45000, 20},
		{"everything", 12, 2000, 50000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := model.NewAdRecord("L1", time.Now())
			rec.CommunitySignals.TotalVotesRaw = tt.votes
			rec.NativeSignals.Views = tt.views
			rec.BehaviorSignals.AvgTimeOnPage = tt.timeMs
			if got := ConfidenceScore(rec); got != tt.want {
				t.Errorf("ConfidenceScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQualitativeState(t *testing.T) {
	tests := []struct {
		name       string
		rec        *model.AdRecord
		risk       int
		confidence int
		want       string
		wantDesc   string
	}{
		{"low risk", model.NewAdRecord("L1", time.Now()), 59, 90, model.StateAttention, ""},
		{"critical report overrides good scores", recordWith(map[string]int{string(sigAdvance): 1, string(sigVisit): 20}, 21), 95, 90, model.StateAttention, ""},
		{"not enough data", model.NewAdRecord("L1", time.Now()), 100, 29, model.StatePending, ""},
		{"consistent", recordWith(map[string]int{string(sigVisit): 10}, 10), 100, 60, model.StateConsistent, ""},
		{"few people stacking praise", recordWith(map[string]int{string(sigVisit): 4, string(sigDocsOK): 4}, 2), 100, 60, model.StateObservation, "Unusually"},
		{"mixed", model.NewAdRecord("L1", time.Now()), 70, 40, model.StateObservation, "Mixed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, _, desc := QualitativeState(tt.rec, tt.risk, tt.confidence)
			if state != tt.want {
				t.Errorf("state = %q, want %q", state, tt.want)
			}
			if tt.wantDesc != "" && !strings.HasPrefix(desc, tt.wantDesc) {
				t.Errorf("description = %q, want prefix %q", desc, tt.wantDesc)
			}
		})
	}

	exposed := model.NewAdRecord("L1", time.Now())
	exposed.NativeSignals.Views = 5000
	if _, _, desc := QualitativeState(exposed, 70, 40); desc != "High exposure, low feedback." {
		t.Errorf("high exposure description = %q", desc)
	}
}

func TestExcessiveConsensus(t *testing.T) {
	tests := []struct {
		name string
		rec  func() *model.AdRecord
		want bool
	}{
		{"below vote floor", func() *model.AdRecord { return recordWith(map[string]int{string(sigVisit): 7}, 1) }, false},
		{"eight votes from two people", func() *model.AdRecord { return recordWith(map[string]int{string(sigVisit): 8}, 2) }, true},
		{"ten votes from ten people", func() *model.AdRecord { return recordWith(map[string]int{string(sigVisit): 10}, 10) }, false},
		{"eight votes from eight people", func() *model.AdRecord { return recordWith(map[string]int{string(sigVisit): 8}, 8) }, false},
		{"ten votes from five people", func() *model.AdRecord { return recordWith(map[string]int{string(sigVisit): 10}, 5) }, true},
		{"unknown participant count", func() *model.AdRecord { return recordWith(map[string]int{string(sigVisit): 10}, 0) }, true},
		{"any risk signal breaks unanimity", func() *model.AdRecord {
			return recordWith(map[string]int{string(sigVisit): 8, string(sigPressure): 1}, 2)
		}, false},
		{"a dislike breaks unanimity", func() *model.AdRecord {
			r := recordWith(map[string]int{string(sigVisit): 8}, 2)
			r.CommunitySignals.VotesDislike = 1
			return r
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExcessiveConsensus(tt.rec()); got != tt.want {
				t.Errorf("ExcessiveConsensus = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreEngine_Fallback(t *testing.T) {
	engine := NewScoreEngine(zerolog.Nop())

	tests := []struct {
		name string
		rec  *model.AdRecord
	}{
		{"nil record", nil},
		{"NaN total", func() *model.AdRecord {
			r := model.NewAdRecord("L1", time.Now())
			r.CommunitySignals.TotalVotesWeighted = math.NaN()
			return r
		}()},
		{"negative weighted count", func() *model.AdRecord {
			r := model.NewAdRecord("L1", time.Now())
			r.CommunitySignals.Weighted[string(sigVisit)] = -2
			return r
		}()},
		{"infinite read time", func() *model.AdRecord {
			r := model.NewAdRecord("L1", time.Now())
			r.BehaviorSignals.AvgTimeOnPage = math.Inf(1)
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := engine.Compute(tt.rec)
			if !s.Degraded {
				t.Fatal("expected degraded scores")
			}
			if s.Risk != 50 || s.Quality != 0 || s.Confidence != 0 {
				t.Errorf("fallback = %d/%d/%d, want 50/0/0", s.Risk, s.Quality, s.Confidence)
			}
			if s.State != model.StatePending || s.Tone != ToneGray {
				t.Errorf("fallback state = %q (%s)", s.State, s.Tone)
			}
		})
	}
}

func TestScoreEngine_Apply(t *testing.T) {
	rec := recordWith(map[string]int{string(sigVisit): 10}, 10)
	NewScoreEngine(zerolog.Nop()).Apply(rec)

	if rec.RiskScore != 100 || rec.QualityScore != 80 || rec.ConfidenceScore != 60 {
		t.Errorf("applied scores = %d/%d/%d, want 100/80/60", rec.RiskScore, rec.QualityScore, rec.ConfidenceScore)
	}
	if rec.State != model.StateConsistent {
		t.Errorf("applied state = %q", rec.State)
	}
}

func TestScoreEngine_Explain(t *testing.T) {
	rec := recordWith(map[string]int{string(sigAdvance): 3, string(sigVisit): 1}, 4)
	rec.ContextStats[string(sigAdvance)] = map[string]float64{"mbway": 2, "bank_transfer": 1}
	rec.AdSignals.ScoreAdjustment = -20
	rec.AdSignals.Reasons = []string{"Price far below market."}
	rec.CommunitySignals.VotesDislike = 2

	exp := NewScoreEngine(zerolog.Nop()).Explain(rec)
	if exp.ListingID != "L1" || exp.State != model.StateAttention {
		t.Fatalf("Explain header = %q / %q", exp.ListingID, exp.State)
	}

	kinds := map[string]string{}
	for _, e := range exp.Explanations {
		if _, seen := kinds[e.Kind]; !seen {
			kinds[e.Kind] = e.Text
		}
	}
	want := map[string]string{
		"risk_signal": "75% of weighted reports mention advance payment.",
		"context":     `Reports of advance payment are mostly tagged "mbway".`,
		"structural":  "Content analysis deducted 20 points.",
		"dislikes":    "2 visitors disliked this listing.",
	}
	for kind, text := range want {
		if kinds[kind] != text {
			t.Errorf("explanation %s = %q, want %q", kind, kinds[kind], text)
		}
	}

	degraded := NewScoreEngine(zerolog.Nop()).Explain(nil)
	if len(degraded.Explanations) != 0 || degraded.RiskScore != 50 {
		t.Errorf("Explain(nil) = %+v", degraded)
	}
}
