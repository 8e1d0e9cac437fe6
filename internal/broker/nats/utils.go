package nats

import (
	"strings"

	"portal-bus/internal/topic"
)

// ToNATSSubject converts a generic filter or topic ("/", "+", "#") to a NATS
// subject (".", "*", ">").
func ToNATSSubject(generic string) string {
	return topic.Translate(generic, topic.Generic, topic.NATS)
}

// ToGenericTopic is the inverse of ToNATSSubject
func ToGenericTopic(subject string) string {
	return topic.Translate(subject, topic.NATS, topic.Generic)
}

// subjectMatches applies the server's routing rules: "*" matches exactly one
// token, a trailing ">" matches one or more tokens, and everything else is
// compared literally.
func subjectMatches(filter, subject string) bool {
	ft := strings.Split(filter, ".")
	st := strings.Split(subject, ".")

	for i, tok := range ft {
		if tok == ">" && i == len(ft)-1 {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(ft) == len(st)
}
