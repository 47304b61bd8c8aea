package alerter

import "github.com/stormguard/stormguard/internal/types"

// Filter returns the alerts whose event type is in allowed, in input order.
// Matching is exact and case-sensitive.
func Filter(alerts []types.Alert, allowed []string) []types.Alert {
	if len(alerts) == 0 || len(allowed) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}

	var matches []types.Alert
	for _, alert := range alerts {
		if _, ok := set[alert.EventType]; ok {
			matches = append(matches, alert)
		}
	}
	return matches
}
