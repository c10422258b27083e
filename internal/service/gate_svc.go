package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/signal"
)

// Admission limits for weighted votes.
const (
	MaxVotesPerListing = 5
	MaxVotesPerWindow  = 5
	VoteRateWindow     = time.Minute
)

// Denial is an expected, user-recoverable refusal of a vote.
type Denial struct {
	Code             string
	Reason           string
	RemainingSeconds int
	ConflictWith     string
}

// entry tracks vote count and window end for a single reporter.
type entry struct {
	count     int
	windowEnd time.Time
}

// VoteGate enforces the per-listing vote cap, the per-reporter rate window
// and the severity-tiered cooldown on each listing.
type VoteGate struct {
	mu        sync.Mutex
	windows   map[string]*entry
	cooldowns map[string]time.Time
	suspicion *SuspicionMonitor
	now       func() time.Time
}

func NewVoteGate(suspicion *SuspicionMonitor) *VoteGate {
	return &VoteGate{
		windows:   make(map[string]*entry),
		cooldowns: make(map[string]time.Time),
		suspicion: suspicion,
		now:       time.Now,
	}
}

func cooldownKey(reporterID, listingID string) string {
	return reporterID + "|" + listingID
}

// CanVote checks a vote against the limits. activeVotes is the reporter's
// current number of active weighted votes on the listing. Reactions and
// retractions always pass. Every denial is reported to the suspicion monitor.
func (g *VoteGate) CanVote(reporterID, listingID string, sig signal.Type, delta, activeVotes int) *Denial {
	if signal.IsReaction(sig) || delta < 0 {
		return nil
	}

	d := g.check(reporterID, listingID, sig, activeVotes)
	if d != nil && g.suspicion != nil {
		g.suspicion.ObserveDenied(reporterID, d.Code)
	}
	return d
}

func (g *VoteGate) check(reporterID, listingID string, sig signal.Type, activeVotes int) *Denial {
	if activeVotes >= MaxVotesPerListing {
		return &Denial{
			Code:   model.DenyVoteCap,
			Reason: fmt.Sprintf("You have already registered %d votes on this listing. Limit reached.", MaxVotesPerListing),
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	if e, ok := g.windows[reporterID]; ok && !now.After(e.windowEnd) && e.count >= MaxVotesPerWindow {
		return &Denial{
			Code:             model.DenyRate,
			Reason:           "Too many votes. Wait a minute.",
			RemainingSeconds: ceilSeconds(e.windowEnd.Sub(now)),
		}
	}

	def, _ := signal.Lookup(sig)
	if def.Cooldown() > 0 {
		if expiry, ok := g.cooldowns[cooldownKey(reporterID, listingID)]; ok && now.Before(expiry) {
			remaining := ceilSeconds(expiry.Sub(now))
			return &Denial{
				Code:             model.DenyCooldown,
				Reason:           fmt.Sprintf("Integrity check active. Wait %ds before voting again.", remaining),
				RemainingSeconds: remaining,
			}
		}
	}
	return nil
}

// Commit books a vote that passed every check: casts count toward the rate
// window and, for cooldown-bearing signals, start the listing cooldown.
func (g *VoteGate) Commit(reporterID, listingID string, sig signal.Type, delta int) {
	if signal.IsReaction(sig) || delta < 0 {
		return
	}

	cooldown := g.DynamicCooldown(reporterID, sig)

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	e, ok := g.windows[reporterID]
	if !ok || now.After(e.windowEnd) {
		g.windows[reporterID] = &entry{count: 1, windowEnd: now.Add(VoteRateWindow)}
	} else {
		e.count++
	}

	if cooldown > 0 {
		g.cooldowns[cooldownKey(reporterID, listingID)] = now.Add(cooldown)
	}
}

// DynamicCooldown scales the signal's base cooldown by 1 + suspicion/20.
func (g *VoteGate) DynamicCooldown(reporterID string, sig signal.Type) time.Duration {
	def, ok := signal.Lookup(sig)
	if !ok || def.Cooldown() == 0 {
		return 0
	}
	level := 0.0
	if g.suspicion != nil {
		level = g.suspicion.Level(reporterID)
	}
	return time.Duration(float64(def.Cooldown()) * (1 + level/20))
}

// CooldownRemaining returns the whole seconds left on a listing cooldown.
func (g *VoteGate) CooldownRemaining(reporterID, listingID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	expiry, ok := g.cooldowns[cooldownKey(reporterID, listingID)]
	if !ok {
		return 0
	}
	return max(ceilSeconds(expiry.Sub(g.now())), 0)
}

// Sweep drops expired rate windows and cooldowns.
func (g *VoteGate) Sweep() (windows, cooldowns int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, e := range g.windows {
		if now.After(e.windowEnd) {
			delete(g.windows, key)
			windows++
		}
	}
	for key, expiry := range g.cooldowns {
		if !now.Before(expiry) {
			delete(g.cooldowns, key)
			cooldowns++
		}
	}
	return windows, cooldowns
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
