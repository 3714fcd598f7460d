// Package topic implements MQTT wildcard matching, including the
// $share/<group>/<topic> and $queue/<topic> shared-subscription forms.
// Grounded on the $share/$queue stripping convention used by eclipse's
// paho.mqtt.golang client (subscribe routing) and generalized to full
// pattern matching against a publish topic.
package topic

import "strings"

// Matches reports whether a publish topic satisfies a subscription
// pattern. pattern may be a plain filter ("a/+/c", "a/#") or a shared/queue
// subscription ("$share/group/a/+", "$queue/a/#"); in both cases the
// $share/<group>/ or $queue/ prefix is stripped before comparing against
// topic, per spec.md §4.1.
func Matches(pattern, topic string) bool {
	if topic == "" {
		return false
	}
	_, _, rest, ok := SplitShare(pattern)
	if ok {
		pattern = rest
	}
	return matchLevels(splitLevels(pattern), splitLevels(topic))
}

// SplitShare strips a $share/<group>/ or $queue/ prefix from pattern.
// ok is false when pattern carries neither prefix, in which case rest ==
// pattern, group is empty and isQueue is false.
func SplitShare(pattern string) (group string, isQueue bool, rest string, ok bool) {
	switch {
	case strings.HasPrefix(pattern, "$share/"):
		trimmed := strings.TrimPrefix(pattern, "$share/")
		parts := strings.SplitN(trimmed, "/", 2)
		if len(parts) != 2 {
			return "", false, pattern, false
		}
		return parts[0], false, parts[1], true
	case strings.HasPrefix(pattern, "$queue/"):
		return "", true, strings.TrimPrefix(pattern, "$queue/"), true
	default:
		return "", false, pattern, false
	}
}

func splitLevels(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func matchLevels(pattern, topic []string) bool {
	for i, p := range pattern {
		if p == "#" {
			// '#' must be the last level and matches zero or more
			// remaining levels, but never a $-rooted root level.
			if i == 0 && len(topic) > 0 && strings.HasPrefix(topic[0], "$") {
				return false
			}
			return true
		}
		if i >= len(topic) {
			return false
		}
		if topic[i] == "" && p != "" {
			// an empty topic level only matches an identical empty pattern level
			return p == ""
		}
		if i == 0 && strings.HasPrefix(topic[0], "$") && (p == "+" || p == "#") {
			return false
		}
		switch p {
		case "+":
			continue
		default:
			if p != topic[i] {
				return false
			}
		}
	}
	return len(pattern) == len(topic)
}
