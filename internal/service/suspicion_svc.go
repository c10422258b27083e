package service

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

// Suspicion increments and thresholds for a reporter session.
const (
	maxSuspicion       = 100.0
	suspicionDecayTick = 5 * time.Second

	fastReportWindow   = 2 * time.Second
	fastReportPenalty  = 15.0
	toggleWindow       = 10 * time.Second
	maxTogglesInWindow = 2
	togglePenalty      = 20.0
	rateLimitPenalty   = 10.0
	cooldownPenalty    = 5.0

	minClickInterval    = 50 * time.Millisecond
	minPointerDistance  = 10.0
	burstReportLimit    = 10
	burstReportWindow   = 5 * time.Minute
	firstReportWeight   = 1.0
	reportWeightDecay   = 0.2
	minReportWeight     = 0.3
	botWeight           = 0.1
	suspicionScaleAbove = 20.0
)

// Reasons a session is raised or flagged.
const (
	ReasonFastReport     = "fast_report"
	ReasonVoteToggling   = "vote_toggling"
	ReasonRateLimited    = "rate_limited"
	ReasonCooldownRepeat = "cooldown_repeat"
	ReasonRapidClicks    = "rapid_clicks"
	ReasonNoPointer      = "no_pointer_movement"
	ReasonExcessReports  = "excessive_reports"
)

// Session event kinds accepted from the page collaborator.
const (
	EventClick  = "click"
	EventMove   = "move"
	EventScroll = "scroll"
)

// Quality actions that must look human before they are counted.
const (
	ActionScrollComplete = "scroll_complete"
	ActionContactOpen    = "contact_open"
)

// SessionEvent is one pointer or scroll observation. At is the client's
// epoch milliseconds when the event happened; events are sent in batches, so
// arrival time says nothing about cadence. Zero means "now".
type SessionEvent struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	At   int64   `json:"at"`
}

// SuspicionStatus is a snapshot of a reporter session.
type SuspicionStatus struct {
	Level       float64
	BotLike     bool
	Reasons     []string
	ReportsCast int
	Multiplier  float64
}

type session struct {
	level     float64
	lastDecay time.Time
	start     time.Time
	lastSeen  time.Time

	lastClick     time.Time // client time of the latest click
	clickCount    int
	scrollEvents  int
	pointerDist   float64
	lastPointer   *[2]float64
	rapidClicks   bool
	reportsCast   int
	cooldownHits  int
	retracts      map[string][]time.Time
	raisedReasons map[string]bool
}

// SuspicionMonitor tracks per-reporter interaction cadence and turns it into
// a bot-suspicion level and a vote weight multiplier.
type SuspicionMonitor struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
	log      zerolog.Logger
}

func NewSuspicionMonitor(logger zerolog.Logger) *SuspicionMonitor {
	return &SuspicionMonitor{
		sessions: make(map[string]*session),
		now:      time.Now,
		log:      logger,
	}
}

// sessionFor returns the reporter's session with decay applied. Caller holds mu.
func (m *SuspicionMonitor) sessionFor(reporterID string) *session {
	now := m.now()
	s, ok := m.sessions[reporterID]
	if !ok {
		s = &session{
			lastDecay:     now,
			start:         now,
			retracts:      make(map[string][]time.Time),
			raisedReasons: make(map[string]bool),
		}
		m.sessions[reporterID] = s
	}
	s.lastSeen = now
	decay(s, now)
	return s
}

// decay lowers the level by one point per elapsed tick, keeping the
// remainder of a partial tick for the next read.
func decay(s *session, now time.Time) {
	elapsed := now.Sub(s.lastDecay)
	if elapsed < suspicionDecayTick {
		return
	}
	ticks := int64(elapsed / suspicionDecayTick)
	s.level = math.Max(0, s.level-float64(ticks))
	s.lastDecay = s.lastDecay.Add(time.Duration(ticks) * suspicionDecayTick)
}

func (m *SuspicionMonitor) raise(reporterID string, s *session, reason string, amount float64) {
	s.level = math.Min(maxSuspicion, s.level+amount)
	s.raisedReasons[reason] = true
	m.log.Debug().
		Str("reporter", shortID(reporterID)).
		Str("reason", reason).
		Float64("level", s.level).
		Msg("suspicion raised")
}

// Observe records a page interaction.
func (m *SuspicionMonitor) Observe(reporterID string, ev SessionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionFor(reporterID)
	switch ev.Kind {
	case EventClick:
		at := m.eventTime(ev)
		if !s.lastClick.IsZero() {
			// Out-of-order clicks carry no cadence information.
			if gap := at.Sub(s.lastClick); gap >= 0 && gap < minClickInterval {
				s.rapidClicks = true
			}
		}
		if at.After(s.lastClick) {
			s.lastClick = at
		}
		s.clickCount++
	case EventMove:
		if s.lastPointer != nil {
			s.pointerDist += math.Hypot(ev.X-s.lastPointer[0], ev.Y-s.lastPointer[1])
		}
		s.lastPointer = &[2]float64{ev.X, ev.Y}
	case EventScroll:
		s.scrollEvents++
	}
}

// eventTime returns when ev happened on the client, capped at the server
// clock.
func (m *SuspicionMonitor) eventTime(ev SessionEvent) time.Time {
	now := m.now()
	if ev.At <= 0 {
		return now
	}
	at := time.UnixMilli(ev.At)
	if at.After(now) {
		return now
	}
	return at
}

// ObserveCast records a successful cast of a weighted signal and returns the
// abuse reason it triggered, if any.
func (m *SuspicionMonitor) ObserveCast(reporterID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionFor(reporterID)
	s.reportsCast++

	if !s.lastClick.IsZero() && m.now().Sub(s.lastClick) < fastReportWindow {
		m.raise(reporterID, s, ReasonFastReport, fastReportPenalty)
		return ReasonFastReport
	}
	return ""
}

// ObserveRetract records a retraction of signalType and returns
// ReasonVoteToggling once the reporter has cycled that signal more than
// twice within the toggle window.
func (m *SuspicionMonitor) ObserveRetract(reporterID, signalType string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionFor(reporterID)
	now := m.now()

	recent := s.retracts[signalType][:0]
	for _, at := range s.retracts[signalType] {
		if now.Sub(at) < toggleWindow {
			recent = append(recent, at)
		}
	}
	recent = append(recent, now)
	s.retracts[signalType] = recent

	if len(recent) > maxTogglesInWindow {
		s.retracts[signalType] = nil
		m.raise(reporterID, s, ReasonVoteToggling, togglePenalty)
		return ReasonVoteToggling
	}
	return ""
}

// ObserveDenied feeds an admission denial back into the session.
func (m *SuspicionMonitor) ObserveDenied(reporterID, code string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionFor(reporterID)
	switch code {
	case model.DenyRate:
		m.raise(reporterID, s, ReasonRateLimited, rateLimitPenalty)
		return ReasonRateLimited
	case model.DenyCooldown:
		s.cooldownHits++
		if s.cooldownHits > 1 {
			m.raise(reporterID, s, ReasonCooldownRepeat, cooldownPenalty)
		}
	}
	return ""
}

// Level returns the decayed suspicion level in [0, 100].
func (m *SuspicionMonitor) Level(reporterID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionFor(reporterID).level
}

// WeightMultiplier returns the factor applied to the reporter's next vote.
func (m *SuspicionMonitor) WeightMultiplier(reporterID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionFor(reporterID)
	return multiplier(s, botReasons(s, m.now()))
}

func multiplier(s *session, bot []string) float64 {
	if len(bot) > 0 {
		return botWeight * math.Max(0.1, 1-s.level/100)
	}
	w := math.Max(minReportWeight, firstReportWeight-float64(s.reportsCast)*reportWeightDecay)
	if s.level > suspicionScaleAbove {
		w *= 1 - s.level/200
	}
	return w
}

func botReasons(s *session, now time.Time) []string {
	var reasons []string
	if s.rapidClicks {
		reasons = append(reasons, ReasonRapidClicks)
	}
	if s.clickCount > 0 && s.pointerDist < minPointerDistance {
		reasons = append(reasons, ReasonNoPointer)
	}
	if s.reportsCast > burstReportLimit && now.Sub(s.start) < burstReportWindow {
		reasons = append(reasons, ReasonExcessReports)
	}
	return reasons
}

// Status returns a snapshot for display.
func (m *SuspicionMonitor) Status(reporterID string) SuspicionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionFor(reporterID)
	bot := botReasons(s, m.now())
	reasons := append([]string(nil), bot...)
	for r := range s.raisedReasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return SuspicionStatus{
		Level:       s.level,
		BotLike:     len(bot) > 0,
		Reasons:     reasons,
		ReportsCast: s.reportsCast,
		Multiplier:  multiplier(s, bot),
	}
}

// ValidateQualityAction rejects engagement signals that could not have come
// from a human reading the page.
func (m *SuspicionMonitor) ValidateQualityAction(reporterID, action string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionFor(reporterID)
	onPage := m.now().Sub(s.start)
	switch action {
	case ActionScrollComplete:
		return onPage >= 2*time.Second && s.pointerDist >= 100
	case ActionContactOpen:
		return onPage >= 3*time.Second && (s.clickCount > 0 || s.scrollEvents > 0)
	}
	return true
}

// Sweep drops sessions idle for longer than idle and returns how many.
func (m *SuspicionMonitor) Sweep(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) > idle {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
