package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/signal"
)

const (
	sigAdvance  = signal.Type("votes_advance_payment")
	sigExternal = signal.Type("votes_external_contact")
	sigPressure = signal.Type("votes_pressure")
	sigDocsOK   = signal.Type("votes_docs_ok")
	sigVisit    = signal.Type("votes_visit_done")
)

func newTestGate() (*VoteGate, *SuspicionMonitor, *fakeClock) {
	clock := newFakeClock()
	m := NewSuspicionMonitor(zerolog.Nop())
	m.now = clock.Now
	g := NewVoteGate(m)
	g.now = clock.Now
	return g, m, clock
}

func TestCanVote_AlwaysAllowed(t *testing.T) {
	g, _, _ := newTestGate()

	tests := []struct {
		name   string
		sig    signal.Type
		delta  int
		active int
	}{
		{"like ignores the cap", signal.Like, 1, MaxVotesPerListing},
		{"dislike ignores the cap", signal.Dislike, 1, MaxVotesPerListing},
		{"retraction at the cap", sigDocsOK, -1, MaxVotesPerListing},
		{"first vote", sigDocsOK, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := g.CanVote("r1", "L1", tt.sig, tt.delta, tt.active); d != nil {
				t.Errorf("CanVote denied with %s: %s", d.Code, d.Reason)
			}
		})
	}
}

func TestCanVote_VoteCap(t *testing.T) {
	g, m, _ := newTestGate()

	d := g.CanVote("r1", "L1", sigDocsOK, 1, MaxVotesPerListing)
	if d == nil || d.Code != model.DenyVoteCap {
		t.Fatalf("CanVote at cap = %+v, want %s", d, model.DenyVoteCap)
	}
	if got := m.Level("r1"); got != 0 {
		t.Errorf("vote cap denial raised suspicion to %.1f", got)
	}
}

func TestCanVote_RateWindow(t *testing.T) {
	g, m, clock := newTestGate()

	for i := 0; i < MaxVotesPerWindow; i++ {
		listing := fmt.Sprintf("L%d", i)
		if d := g.CanVote("r1", listing, sigDocsOK, 1, 0); d != nil {
			t.Fatalf("vote %d denied: %s", i+1, d.Code)
		}
		g.Commit("r1", listing, sigDocsOK, 1)
	}

	clock.Advance(20 * time.Second)
	d := g.CanVote("r1", "L9", sigDocsOK, 1, 0)
	if d == nil || d.Code != model.DenyRate {
		t.Fatalf("CanVote over the window = %+v, want %s", d, model.DenyRate)
	}
	if d.RemainingSeconds != 40 {
		t.Errorf("RemainingSeconds = %d, want 40", d.RemainingSeconds)
	}
	if got := m.Level("r1"); got != 10 {
		t.Errorf("rate denial suspicion = %.1f, want 10", got)
	}

	clock.Advance(41 * time.Second)
	if d := g.CanVote("r1", "L9", sigDocsOK, 1, 0); d != nil {
		t.Errorf("CanVote after window = %s, want allowed", d.Code)
	}
}

func TestCanVote_Cooldown(t *testing.T) {
	g, _, clock := newTestGate()
	g.Commit("r1", "L1", sigAdvance, 1)

	tests := []struct {
		name     string
		listing  string
		sig      signal.Type
		wantCode string
	}{
		{"another red signal on the same listing", "L1", sigExternal, model.DenyCooldown},
		{"yellow signal on the same listing", "L1", sigPressure, model.DenyCooldown},
		{"positive signal has no cooldown", "L1", sigDocsOK, ""},
		{"other listing", "L2", sigExternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.CanVote("r1", tt.listing, tt.sig, 1, 1)
			switch {
			case tt.wantCode == "" && d != nil:
				t.Errorf("CanVote denied with %s", d.Code)
			case tt.wantCode != "" && (d == nil || d.Code != tt.wantCode):
				t.Errorf("CanVote = %+v, want %s", d, tt.wantCode)
			case d != nil && d.RemainingSeconds != 5:
				t.Errorf("RemainingSeconds = %d, want 5", d.RemainingSeconds)
			}
		})
	}

	clock.Advance(5 * time.Second)
	if d := g.CanVote("r1", "L1", sigExternal, 1, 1); d != nil {
		t.Errorf("CanVote after cooldown = %s, want allowed", d.Code)
	}
}

func TestDynamicCooldown(t *testing.T) {
	g, m, _ := newTestGate()

	if got := g.DynamicCooldown("r1", sigAdvance); got != 5*time.Second {
		t.Errorf("red cooldown = %s, want 5s", got)
	}
	if got := g.DynamicCooldown("r1", sigPressure); got != 3*time.Second {
		t.Errorf("yellow cooldown = %s, want 3s", got)
	}
	if got := g.DynamicCooldown("r1", sigVisit); got != 0 {
		t.Errorf("green cooldown = %s, want 0", got)
	}

	m.ObserveDenied("r1", model.DenyRate)
	m.ObserveDenied("r1", model.DenyRate)
	if got := g.DynamicCooldown("r1", sigAdvance); got != 10*time.Second {
		t.Errorf("red cooldown at suspicion 20 = %s, want 10s", got)
	}

	g.Commit("r1", "L1", sigAdvance, 1)
	if got := g.CooldownRemaining("r1", "L1"); got != 10 {
		t.Errorf("CooldownRemaining = %d, want 10", got)
	}
}

func TestCommit_IgnoresReactionsAndRetractions(t *testing.T) {
	g, _, _ := newTestGate()
	for i := 0; i < 10; i++ {
		g.Commit("r1", "L1", signal.Like, 1)
		g.Commit("r1", "L1", sigAdvance, -1)
	}
	if d := g.CanVote("r1", "L1", sigAdvance, 1, 0); d != nil {
		t.Errorf("CanVote = %s, want allowed", d.Code)
	}
}

func TestVoteGateSweep(t *testing.T) {
	g, _, clock := newTestGate()
	g.Commit("r1", "L1", sigAdvance, 1)
	g.Commit("r2", "L1", sigDocsOK, 1)

	if w, c := g.Sweep(); w != 0 || c != 0 {
		t.Errorf("Sweep before expiry = (%d, %d), want (0, 0)", w, c)
	}
	clock.Advance(2 * time.Minute)
	if w, c := g.Sweep(); w != 2 || c != 1 {
		t.Errorf("Sweep after expiry = (%d, %d), want (2, 1)", w, c)
	}
}
