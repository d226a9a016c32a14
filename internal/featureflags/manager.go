// Package featureflags evaluates on/off and percentage rollout flags from a
// FEATURE_FLAGS string such as "email_verification=on,like_notifications=25%".
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Flags consulted by the API.
const (
	EmailVerification = "email_verification"
	NameEnrichment    = "name_enrichment"
	LikeNotifications = "like_notifications"
)

// rule is a parsed flag value. percent is 0..100; on is 100 and off is 0.
type rule struct {
	raw     string
	percent int
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{raw: value, percent: 100}, true
	case "off", "false", "0":
		return rule{raw: value}, true
	}
	pct, found := strings.CutSuffix(value, "%")
	if !found {
		return rule{}, false
	}
	n, err := strconv.Atoi(pct)
	if err != nil {
		return rule{}, false
	}
	return rule{raw: value, percent: min(max(n, 0), 100)}, true
}

// Manager holds parsed flags. A nil Manager has every flag off.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed entries are ignored.
func NewManager(raw string) *Manager {
	return NewManagerWithDefaults(raw, nil)
}

// NewManagerWithDefaults parses raw on top of defaults.
func NewManagerWithDefaults(raw string, defaults map[string]string) *Manager {
	m := &Manager{rules: make(map[string]rule, len(defaults))}
	for k, v := range defaults {
		m.set(k, v)
	}
	for _, pair := range strings.Split(raw, ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			m.set(k, v)
		}
	}
	return m
}

func (m *Manager) set(key, value string) {
	key = normalize(key)
	if key == "" {
		return
	}
	if r, ok := parseRule(normalize(value)); ok {
		m.rules[key] = r
	}
}

// Enabled reports whether name is on for userID. Partial rollouts bucket users
// deterministically by flag name and never include the anonymous user 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	name = normalize(name)
	r, ok := m.rules[name]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == 0:
		return false
	default:
		return bucket(name, userID) < r.percent
	}
}

// Raw returns the configured values by flag name.
func (m *Manager) Raw() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return lo.MapValues(m.rules, func(r rule, _ string) string { return r.raw })
}

// Snapshot evaluates every configured flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	return lo.MapValues(m.rules, func(_ rule, name string) bool { return m.Enabled(name, userID) })
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
