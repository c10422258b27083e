// Package signal holds the static signal tables: which observations a
// reporter may assert about a listing, how severe each one is, and which
// pairs of observations cannot both be true.
package signal

import (
	"sort"
	"strings"
	"time"
)

// Type is a reporter-assertable observation, e.g. "votes_advance_payment".
type Type string

const (
	Like    Type = "votes_like"
	Dislike Type = "votes_dislike"
)

// Prefix is carried by every signal key in stored records.
const Prefix = "votes_"

// Tab groups signals the way the reporting tooltip presents them.
type Tab string

const (
	TabRisk     Tab = "risk"
	TabPositive Tab = "positive"
	TabReaction Tab = "reaction"
)

// Tone is the severity colour of a signal button. It decides the base
// cooldown a cast imposes on the listing.
type Tone string

const (
	ToneRed     Tone = "red"
	ToneYellow  Tone = "yellow"
	ToneNeutral Tone = "neutral"
	ToneGreen   Tone = "green"
)

// Base weights by severity class.
const (
	BaseWeightCritical = 1.5
	BaseWeightWarning  = 1.2
	BaseWeightPositive = 1.0
	BaseWeightOther    = 0.8
)

// Maximum percentage impacts on the risk axis.
const (
	RiskImpactCritical = 100.0
	RiskImpactWarning  = 40.0
	RiskImpactLight    = 20.0
)

// Maximum percentage impacts on the quality axis.
const (
	QualityImpactPhysical      = 80.0
	QualityImpactDocuments     = 60.0
	QualityImpactAccountAge    = 40.0
	QualityImpactReputation    = 30.0
	QualityImpactCommunication = 20.0
)

// Definition describes one entry of the catalog.
type Definition struct {
	Type          Type    `json:"type"`
	Tab           Tab     `json:"tab"`
	Tone          Tone    `json:"tone"`
	RiskImpact    float64 `json:"riskImpact,omitempty"`
	QualityImpact float64 `json:"qualityImpact,omitempty"`
}

// Critical reports whether the signal sits in the top risk tier. A single
// active critical report forces the Attention Required verdict.
func (d Definition) Critical() bool {
	return d.RiskImpact >= RiskImpactCritical
}

// BaseWeight is the reporter-independent severity multiplier.
func (d Definition) BaseWeight() float64 {
	switch {
	case d.RiskImpact >= RiskImpactCritical:
		return BaseWeightCritical
	case d.RiskImpact >= RiskImpactWarning:
		return BaseWeightWarning
	case d.Tab == TabPositive:
		return BaseWeightPositive
	default:
		return BaseWeightOther
	}
}

// Cooldown is the base per-listing cooldown a cast of this signal sets,
// before the suspicion multiplier.
func (d Definition) Cooldown() time.Duration {
	switch d.Tone {
	case ToneRed:
		return 5 * time.Second
	case ToneYellow:
		return 3 * time.Second
	default:
		return 0
	}
}

func critical(name string, tone Tone) Definition {
	return Definition{Type: Type(Prefix + name), Tab: TabRisk, Tone: tone, RiskImpact: RiskImpactCritical}
}

func warning(name string, tone Tone) Definition {
	return Definition{Type: Type(Prefix + name), Tab: TabRisk, Tone: tone, RiskImpact: RiskImpactWarning}
}

func light(name string, tone Tone) Definition {
	return Definition{Type: Type(Prefix + name), Tab: TabRisk, Tone: tone, RiskImpact: RiskImpactLight}
}

func positive(name string, impact float64) Definition {
	return Definition{Type: Type(Prefix + name), Tab: TabPositive, Tone: ToneGreen, QualityImpact: impact}
}

var definitions = []Definition{
	{Type: Like, Tab: TabReaction, Tone: ToneNeutral},
	{Type: Dislike, Tab: TabReaction, Tone: ToneNeutral},

	critical("no_response", ToneNeutral),
	critical("external_contact", ToneRed),
	critical("advance_payment", ToneRed),
	critical("fake_item", ToneRed),
	critical("deposit_no_visit", ToneRed),
	critical("deposit_before_see", ToneRed),
	critical("mbway_scam", ToneRed),
	critical("phishing", ToneRed),
	critical("external_payment", ToneRed),
	critical("fake_courier", ToneRed),
	critical("fake_payment_proof", ToneRed),
	critical("fake_proof", ToneRed),
	critical("sms_code", ToneRed),
	critical("suspicious_link", ToneRed),
	critical("never_arrived", ToneRed),
	critical("not_owner", ToneRed),
	critical("cloned_ad", ToneRed),
	critical("cloned_listing", ToneRed),
	critical("fake_profile", ToneRed),
	critical("fake_photo", ToneRed),
	critical("property_different", ToneRed),
	critical("no_visit_allowed", ToneRed),

	warning("unrealistic_price", ToneYellow),
	warning("pressure", ToneYellow),
	warning("pressure_sale", ToneYellow),
	warning("evasive", ToneYellow),
	warning("new_profile", ToneNeutral),
	warning("off_platform", ToneYellow),
	warning("only_whatsapp", ToneYellow),
	warning("conditions_changed", ToneYellow),
	warning("ai_photos", ToneYellow),
	warning("generic_images", ToneYellow),
	warning("docs_incomplete", ToneYellow),
	warning("km_suspect", ToneYellow),
	warning("no_test_drive", ToneYellow),
	warning("vague_location", ToneYellow),
	warning("address_fishing", ToneYellow),
	warning("targets_foreigners", ToneYellow),
	warning("fake_promo", ToneYellow),
	warning("bad_portuguese", ToneYellow),
	warning("too_cheap", ToneRed),
	warning("wrong_size", ToneRed),
	warning("bad_quality", ToneRed),
	warning("abroad_car", ToneRed),
	warning("accident_hidden", ToneRed),
	warning("debts_hidden", ToneRed),
	warning("foreign_shipping", ToneRed),
	warning("repost", ToneYellow),
	warning("inconsistent", ToneYellow),
	warning("hard_return", ToneNeutral),
	warning("sold_item", ToneNeutral),

	light("vague_desc", ToneYellow),
	light("missing_details", ToneYellow),
	light("poor_description", ToneNeutral),

	{Type: Prefix + "no_docs", Tab: TabRisk, Tone: ToneYellow},

	positive("visit_done", QualityImpactPhysical),
	positive("saw_car", QualityImpactPhysical),
	positive("test_drive_ok", QualityImpactPhysical),
	positive("test_drive_done", QualityImpactPhysical),
	positive("hand_delivery", QualityImpactPhysical),
	positive("product_ok", QualityImpactPhysical),

	positive("docs_complete", QualityImpactDocuments),
	positive("docs_ok", QualityImpactDocuments),
	positive("docs_shown", QualityImpactDocuments),
	positive("location_matches", QualityImpactDocuments),
	positive("location_confirmed", QualityImpactDocuments),
	positive("history_clear", QualityImpactDocuments),
	positive("owner_real", QualityImpactDocuments),
	positive("real_owner", QualityImpactDocuments),
	positive("visit_available", QualityImpactDocuments),
	positive("mechanic_check", QualityImpactDocuments),
	positive("mechanical_check", QualityImpactDocuments),
	positive("mail_ok", QualityImpactDocuments),

	positive("old_profile", QualityImpactAccountAge),

	positive("trusted_seller", QualityImpactReputation),
	positive("trusted_stand", QualityImpactReputation),
	positive("legit_profile", QualityImpactReputation),
	positive("verified_seller", QualityImpactReputation),

	positive("clear_communication", QualityImpactCommunication),
	positive("responsive", QualityImpactCommunication),
	positive("communication", QualityImpactCommunication),
	positive("clear_process", QualityImpactCommunication),
	positive("negotiation_ok", QualityImpactCommunication),
	positive("fast_shipping", QualityImpactCommunication),
	positive("fair_price", QualityImpactCommunication),
	positive("good_quality", QualityImpactCommunication),
	positive("real_photos", QualityImpactCommunication),
	positive("original_photos", QualityImpactCommunication),
	positive("true_size", QualityImpactCommunication),
	positive("legit", QualityImpactCommunication),
}

var catalog = func() map[Type]Definition {
	m := make(map[Type]Definition, len(definitions))
	for _, d := range definitions {
		m[d.Type] = d
	}
	return m
}()

// Normalize accepts a signal name with or without the "votes_" prefix and
// returns the canonical key.
func Normalize(name string) Type {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(name, Prefix) {
		name = Prefix + name
	}
	return Type(name)
}

// Lookup returns the catalog entry for t.
func Lookup(t Type) (Definition, bool) {
	d, ok := catalog[t]
	return d, ok
}

// Known reports whether t is in the catalog.
func Known(t Type) bool {
	_, ok := catalog[t]
	return ok
}

// IsReaction reports whether t is a like or dislike. Reactions bypass
// admission control and are never weighted.
func IsReaction(t Type) bool {
	return t == Like || t == Dislike
}

// Opposite returns the other reaction for a like or dislike.
func Opposite(t Type) (Type, bool) {
	switch t {
	case Like:
		return Dislike, true
	case Dislike:
		return Like, true
	}
	return "", false
}

// BaseWeight returns the severity multiplier for t. Unknown signals fall in
// the catch-all class.
func BaseWeight(t Type) float64 {
	if d, ok := catalog[t]; ok {
		return d.BaseWeight()
	}
	return BaseWeightOther
}

// All returns the catalog sorted by tab then type.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tab != out[j].Tab {
			return out[i].Tab < out[j].Tab
		}
		return out[i].Type < out[j].Type
	})
	return out
}
