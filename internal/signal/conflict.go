package signal

import "sort"

// contradictions lists, per signal, the observations it logically rules out.
// The graph built from it is symmetric even where a row names only one side.
var contradictions = map[string][]string{
	"old_profile":        {"new_profile", "fake_profile"},
	"trusted_seller":     {"new_profile", "fake_profile"},
	"verified_seller":    {"new_profile", "fake_profile"},
	"owner_real":         {"new_profile", "fake_profile", "not_owner"},
	"no_response":        {"responsive", "clear_communication", "negotiation_ok", "clear_process"},
	"evasive":            {"responsive", "clear_communication", "negotiation_ok", "clear_process"},
	"off_platform":       {"responsive", "clear_communication", "clear_process"},
	"only_whatsapp":      {"responsive", "clear_communication", "clear_process"},
	"ai_photos":          {"real_photos", "original_photos"},
	"generic_images":     {"real_photos", "original_photos"},
	"cloned_listing":     {"real_photos", "original_photos"},
	"cloned_ad":          {"real_photos", "original_photos"},
	"fake_photo":         {"real_photos", "original_photos"},
	"vague_location":     {"location_confirmed", "location_matches", "hand_delivery"},
	"fake_item":          {"location_confirmed", "location_matches", "visit_done", "visit_available", "saw_car", "hand_delivery"},
	"property_different": {"location_matches", "visit_done", "saw_car"},
	"no_visit_allowed":   {"visit_available", "visit_done", "saw_car", "test_drive_ok", "test_drive_done"},
	"no_test_drive":      {"test_drive_ok", "test_drive_done"},
	"deposit_no_visit":   {"visit_available", "visit_done", "saw_car"},
	"deposit_before_see": {"saw_car", "test_drive_ok", "test_drive_done", "mechanical_check"},
	"advance_payment":    {"visit_available", "visit_done", "saw_car", "hand_delivery"},
	"docs_incomplete":    {"docs_ok", "docs_shown", "docs_complete", "mechanical_check"},
	"no_docs":            {"docs_ok", "docs_shown", "docs_complete"},
	"pressure":           {"clear_process", "responsive"},
	"pressure_sale":      {"clear_process", "responsive"},
}

var conflictGraph = func() map[Type]map[Type]struct{} {
	g := make(map[Type]map[Type]struct{})
	link := func(a, b Type) {
		if g[a] == nil {
			g[a] = make(map[Type]struct{})
		}
		g[a][b] = struct{}{}
	}
	for from, tos := range contradictions {
		a := Type(Prefix + from)
		for _, to := range tos {
			b := Type(Prefix + to)
			link(a, b)
			link(b, a)
		}
	}
	return g
}()

// Conflicts reports whether a and b cannot both be active for one reporter
// on one listing.
func Conflicts(a, b Type) bool {
	_, ok := conflictGraph[a][b]
	return ok
}

// ConflictsOf returns every signal that contradicts t, sorted.
func ConflictsOf(t Type) []Type {
	out := make([]Type, 0, len(conflictGraph[t]))
	for other := range conflictGraph[t] {
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckConflict returns the first active signal, in sorted order, that
// contradicts candidate. Reactions never conflict.
func CheckConflict(active []Type, candidate Type) (Type, bool) {
	if IsReaction(candidate) {
		return "", false
	}
	sorted := make([]Type, len(active))
	copy(sorted, active)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, a := range sorted {
		if Conflicts(a, candidate) {
			return a, true
		}
	}
	return "", false
}
