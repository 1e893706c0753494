package webhook

import (
	"slices"
	"strings"
)

// ShouldSend reports whether event passes the config's subtype allowlist.
// A nil config never sends. An empty allowlist accepts everything, and an
// event type without a "<domain>.<subtype>" shape is delivered anyway.
func ShouldSend(cfg *Config, event EventType) bool {
	if cfg == nil {
		return false
	}
	if len(cfg.Events) == 0 {
		return true
	}
	_, subtype, ok := strings.Cut(string(event), ".")
	if !ok || subtype == "" {
		return true
	}
	return slices.Contains(cfg.Events, subtype)
}
