package topic

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFilter is returned for malformed subscription filters.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidTopic is returned for topics that cannot be published or matched.
	ErrInvalidTopic = errors.New("invalid topic")
)

// Topic is a concrete, wildcard-free address split into levels.
type Topic struct {
	levels []string
	name   string
}

// ParseTopic splits s on the binding separator. Empty levels are preserved so
// that String() returns the normalized form of s unchanged.
func ParseTopic(s string, b Binding) (Topic, error) {
	if s == "" {
		return Topic{}, fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	levels := strings.Split(s, b.Separator)
	return Topic{
		levels: levels,
		name:   strings.Join(levels, Separator),
	}, nil
}

// MustParseTopic is like ParseTopic with the generic binding but panics on error.
func MustParseTopic(s string) Topic {
	t, err := ParseTopic(s, Generic)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the topic with "/" separated levels.
func (t Topic) String() string {
	return t.name
}

// Levels returns a copy of the topic levels.
func (t Topic) Levels() []string {
	out := make([]string, len(t.levels))
	copy(out, t.levels)
	return out
}

// Len returns the number of levels.
func (t Topic) Len() int {
	return len(t.levels)
}

// Format renders the topic using the separator of b.
func (t Topic) Format(b Binding) string {
	return strings.Join(t.levels, b.Separator)
}
