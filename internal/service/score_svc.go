package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/signal"
)

// Thresholds of the scoring model.
const (
	riskCamouflageFloor   = 60
	riskConsistentFloor   = 85
	confidencePending     = 30
	confidenceConsistent  = 50
	legacyAdvancePenalty  = 50.0
	dislikePenaltyEach    = 3.0
	dislikePenaltyCap     = 15.0
	savesBonusEach        = 2.0
	savesBonusCap         = 20.0
	likesBonusEach        = 2.0
	likesBonusCap         = 10.0
	viewsBonus            = 5.0
	highViews             = 1000
	mediumViews           = 300
	longReadMs            = 40000.0
	consensusMinVotes     = 8
	lowFeedbackVotes      = 3
	fallbackRisk          = 50
	positiveShareEpsilon  = 1e-6
	abandonRateNotable    = 0.5
	contactRateNotable    = 0.2
	minVisitsForBehaviour = 5
)

// Verdict tones.
const (
	ToneRed   = "red"
	ToneGray  = "gray"
	ToneGreen = "green"
	ToneAmber = "amber"
)

// Scores is the derived projection of a record.
type Scores struct {
	Risk        int
	Quality     int
	Confidence  int
	State       string
	Tone        string
	Description string
	Degraded    bool
}

// ScoreEngine recomputes risk, quality, confidence and the verdict from an
// AdRecord. It never fails: a record it cannot score gets the neutral
// fallback instead.
type ScoreEngine struct {
	log zerolog.Logger
}

func NewScoreEngine(logger zerolog.Logger) *ScoreEngine {
	return &ScoreEngine{log: logger}
}

// Compute scores rec without mutating it.
func (e *ScoreEngine) Compute(rec *model.AdRecord) (s Scores) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("score computation panicked, using fallback")
			s = fallbackScores()
		}
	}()

	if err := validateRecord(rec); err != nil {
		e.log.Warn().Err(err).Msg("record not scorable, using fallback")
		return fallbackScores()
	}
	return computeScores(rec)
}

// Apply scores rec and writes the result into it.
func (e *ScoreEngine) Apply(rec *model.AdRecord) Scores {
	s := e.Compute(rec)
	if rec != nil {
		rec.RiskScore = s.Risk
		rec.QualityScore = s.Quality
		rec.ConfidenceScore = s.Confidence
		rec.State = s.State
	}
	return s
}

// Explain builds the display projection of rec.
func (e *ScoreEngine) Explain(rec *model.AdRecord) model.ScoreExplanation {
	s := e.Compute(rec)
	out := model.ScoreExplanation{
		RiskScore:       s.Risk,
		QualityScore:    s.Quality,
		ConfidenceScore: s.Confidence,
		State:           s.State,
		Tone:            s.Tone,
		Description:     s.Description,
		Explanations:    []model.Explanation{},
	}
	if rec == nil {
		return out
	}
	out.ListingID = rec.ListingID
	if !s.Degraded {
		out.Explanations = explanations(rec)
	}
	return out
}

func fallbackScores() Scores {
	return Scores{
		Risk:        fallbackRisk,
		Quality:     0,
		Confidence:  0,
		State:       model.StatePending,
		Tone:        ToneGray,
		Description: "Scores could not be computed for this listing.",
		Degraded:    true,
	}
}

func validateRecord(rec *model.AdRecord) error {
	if rec == nil {
		return &ScoreComputationError{Field: "record", Reason: "is missing"}
	}
	cs := rec.CommunitySignals
	if bad(cs.TotalVotesWeighted) || cs.TotalVotesWeighted < 0 {
		return &ScoreComputationError{Field: "total_votes_weighted", Reason: "is not a non-negative number"}
	}
	for k, w := range cs.Weighted {
		if bad(w) || w < 0 {
			return &ScoreComputationError{Field: k, Reason: "has an invalid weighted count"}
		}
	}
	if bad(rec.BehaviorSignals.AvgTimeOnPage) {
		return &ScoreComputationError{Field: "avg_time_on_page", Reason: "is not a number"}
	}
	return nil
}

func bad(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func computeScores(rec *model.AdRecord) Scores {
	risk := RiskScore(rec)
	quality := QualityScore(rec, risk)
	confidence := ConfidenceScore(rec)
	state, tone, desc := QualitativeState(rec, risk, confidence)
	return Scores{
		Risk:        risk,
		Quality:     quality,
		Confidence:  confidence,
		State:       state,
		Tone:        tone,
		Description: desc,
	}
}

// RiskScore starts at 100 and subtracts absolute and percentage penalties.
//
//	impact(signal) = weighted(signal) / total_votes_weighted * maxImpact(signal)
func RiskScore(rec *model.AdRecord) int {
	cs := rec.CommunitySignals
	score := 100.0

	score += float64(model.ClampAdjustment(rec.AdSignals.ScoreAdjustment))
	if rec.UserSignals.AdvancePayment > 0 {
		score -= legacyAdvancePenalty
	}
	score -= math.Min(dislikePenaltyCap, float64(cs.VotesDislike)*dislikePenaltyEach)

	if cs.TotalVotesWeighted > 0 {
		for key, w := range cs.Weighted {
			def, ok := signal.Lookup(signal.Type(key))
			if !ok || def.RiskImpact == 0 || w <= 0 {
				continue
			}
			score -= w / cs.TotalVotesWeighted * def.RiskImpact
		}
	}
	return clampScore(score)
}

// QualityScore is zero for listings already below the camouflage floor.
func QualityScore(rec *model.AdRecord, risk int) int {
	if risk < riskCamouflageFloor {
		return 0
	}
	cs := rec.CommunitySignals
	score := math.Min(savesBonusCap, float64(rec.NativeSignals.Saves)*savesBonusEach)
	if rec.NativeSignals.Views > highViews {
		score += viewsBonus
	}
	score += math.Min(likesBonusCap, float64(cs.VotesLike)*likesBonusEach)

	if cs.TotalVotesWeighted > 0 {
		for key, w := range cs.Weighted {
			def, ok := signal.Lookup(signal.Type(key))
			if !ok || def.QualityImpact == 0 || w <= 0 {
				continue
			}
			score += w / cs.TotalVotesWeighted * def.QualityImpact
		}
	}
	return clampScore(score)
}

// ConfidenceScore measures how much data backs the verdict.
func ConfidenceScore(rec *model.AdRecord) int {
	votes := rec.CommunitySignals.TotalVotesRaw
	score := 0.0
	switch {
	case votes >= 10:
		score += 60
	case votes > 3:
		score += 30
	case votes > 0:
		score += 10
	}

	switch views := rec.NativeSignals.Views; {
	case views > highViews:
		score += 20
	case views > mediumViews:
		score += 10
	}

	if rec.BehaviorSignals.AvgTimeOnPage > longReadMs {
		score += 20
	}
	return clampScore(score)
}

// QualitativeState picks the verdict; the first matching rule wins.
func QualitativeState(rec *model.AdRecord, risk, confidence int) (state, tone, description string) {
	if risk < riskCamouflageFloor || hasCriticalReport(rec) {
		return model.StateAttention, ToneRed, "Reports or content analysis point to a risk pattern."
	}
	if confidence < confidencePending {
		return model.StatePending, ToneGray, "Not enough data yet to form a verdict."
	}
	if risk >= riskConsistentFloor && confidence >= confidenceConsistent {
		if ExcessiveConsensus(rec) {
			return model.StateObservation, ToneAmber, "Unusually unanimous positive feedback, kept under observation."
		}
		return model.StateConsistent, ToneGreen, "Community feedback is consistent and positive."
	}
	if rec.NativeSignals.Views > highViews && rec.CommunitySignals.TotalVotesRaw < lowFeedbackVotes {
		return model.StateObservation, ToneAmber, "High exposure, low feedback."
	}
	return model.StateObservation, ToneAmber, "Mixed or limited feedback."
}

func hasCriticalReport(rec *model.AdRecord) bool {
	for key, raw := range rec.CommunitySignals.Raw {
		if raw <= 0 {
			continue
		}
		if def, ok := signal.Lookup(signal.Type(key)); ok && def.Critical() {
			return true
		}
	}
	return false
}

// ExcessiveConsensus flags implausibly unanimous praise: at least eight
// votes, all of them positive with no dislikes, stacked by few participants
// (at least two votes per person). Unanimity alone is not flagged: eight
// reporters casting one positive vote each is ordinary agreement and stays
// consistent. Records without a participant count fall back to the
// unanimity test alone.
func ExcessiveConsensus(rec *model.AdRecord) bool {
	cs := rec.CommunitySignals
	if cs.TotalVotesRaw < consensusMinVotes || cs.TotalVotesWeighted <= 0 || cs.VotesDislike > 0 {
		return false
	}
	var positive float64
	for key, w := range cs.Weighted {
		if def, ok := signal.Lookup(signal.Type(key)); ok && def.Tab == signal.TabPositive {
			positive += w
		}
	}
	if positive < cs.TotalVotesWeighted-positiveShareEpsilon {
		return false
	}
	if cs.UsersCount == 0 {
		return true
	}
	return cs.UsersCount*2 <= cs.TotalVotesRaw
}

func clampScore(v float64) int {
	return int(math.Round(math.Min(100, math.Max(0, v))))
}

type share struct {
	key string
	pct float64
}

func topShares(rec *model.AdRecord, keep func(signal.Definition) bool, n int) []share {
	cs := rec.CommunitySignals
	if cs.TotalVotesWeighted <= 0 {
		return nil
	}
	var out []share
	for key, w := range cs.Weighted {
		def, ok := signal.Lookup(signal.Type(key))
		if !ok || w <= 0 || !keep(def) {
			continue
		}
		out = append(out, share{key: key, pct: w / cs.TotalVotesWeighted * 100})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].pct != out[j].pct {
			return out[i].pct > out[j].pct
		}
		return out[i].key < out[j].key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func displayName(key string) string {
	return strings.ReplaceAll(strings.TrimPrefix(key, signal.Prefix), "_", " ")
}

func explanations(rec *model.AdRecord) []model.Explanation {
	out := []model.Explanation{}
	add := func(kind, format string, args ...any) {
		out = append(out, model.Explanation{Kind: kind, Text: fmt.Sprintf(format, args...)})
	}

	for _, s := range topShares(rec, func(d signal.Definition) bool { return d.RiskImpact > 0 }, 3) {
		add("risk_signal", "%.0f%% of weighted reports mention %s.", s.pct, displayName(s.key))
		if tag, ok := topContext(rec, s.key); ok {
			add("context", "Reports of %s are mostly tagged %q.", displayName(s.key), tag)
		}
	}
	for _, s := range topShares(rec, func(d signal.Definition) bool { return d.QualityImpact > 0 }, 2) {
		add("quality_signal", "%.0f%% of weighted reports confirm %s.", s.pct, displayName(s.key))
	}

	if adj := model.ClampAdjustment(rec.AdSignals.ScoreAdjustment); adj < 0 {
		add("structural", "Content analysis deducted %d points.", -adj)
		for _, reason := range rec.AdSignals.Reasons {
			add("structural", "%s", reason)
		}
	}
	if rec.UserSignals.AdvancePayment > 0 {
		add("legacy_report", "A previous local report flagged an advance payment request.")
	}
	if d := rec.CommunitySignals.VotesDislike; d > 0 {
		add("dislikes", "%d visitors disliked this listing.", d)
	}

	b := rec.BehaviorSignals
	if b.TotalVisits >= minVisitsForBehaviour {
		visits := float64(b.TotalVisits)
		if rate := float64(b.AbandonFastCount) / visits; rate > abandonRateNotable {
			add("behavior", "%.0f%% of visitors leave within seconds.", rate*100)
		}
		if rate := float64(b.ContactOpenCount) / visits; rate > contactRateNotable {
			add("behavior", "%.0f%% of visitors open the contact details.", rate*100)
		}
	}
	if b.AvgTimeOnPage > longReadMs {
		add("behavior", "Visitors spend %.0f seconds on average reading this listing.", b.AvgTimeOnPage/1000)
	}

	if ExcessiveConsensus(rec) {
		add("consensus", "Feedback is unanimously positive from few participants.")
	}
	if rec.NativeSignals.Views > highViews && rec.CommunitySignals.TotalVotesRaw < lowFeedbackVotes {
		add("exposure", "Seen %d times but rarely reported on.", rec.NativeSignals.Views)
	}
	return out
}

func topContext(rec *model.AdRecord, key string) (string, bool) {
	var best string
	var bestW float64
	for tag, w := range rec.ContextStats[key] {
		if w > bestW || (w == bestW && w > 0 && tag < best) {
			best, bestW = tag, w
		}
	}
	return best, bestW > 0
}
