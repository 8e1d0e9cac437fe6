// Package topic implements the protocol-agnostic topic model: parsing topics,
// classifying subscription filters and matching the two against each other.
//
// Application code speaks the generic dialect ("/" separator, "+" single-level
// wildcard, "#" multi-level wildcard). Protocol adapters that use another
// dialect describe it with a Binding and translate at the wire boundary.
package topic

import "strings"

// Separator is the internal, normalized topic level separator.
const Separator = "/"

// Binding describes the wildcard dialect of a protocol.
type Binding struct {
	Separator   string
	SingleLevel string
	MultiLevel  string
}

var (
	// Generic is the dialect used by application code and by MQTT.
	Generic = Binding{Separator: "/", SingleLevel: "+", MultiLevel: "#"}

	// MQTT is an alias of Generic kept for readability at call sites.
	MQTT = Generic

	// NATS is the "*"/">" dialect with "." separated subjects.
	NATS = Binding{Separator: ".", SingleLevel: "*", MultiLevel: ">"}
)

// Translate rewrites a pattern from one dialect into another by substituting
// the separator and both wildcard tokens. Literal characters are untouched.
func Translate(pattern string, from, to Binding) string {
	if from == to {
		return pattern
	}
	r := strings.NewReplacer(
		from.Separator, to.Separator,
		from.SingleLevel, to.SingleLevel,
		from.MultiLevel, to.MultiLevel,
	)
	return r.Replace(pattern)
}

// HasWildcard reports whether s contains either wildcard token of b.
func (b Binding) HasWildcard(s string) bool {
	return strings.Contains(s, b.SingleLevel) || strings.Contains(s, b.MultiLevel)
}
