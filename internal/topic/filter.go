package topic

import (
	"fmt"
	"strings"
)

// Kind is the classification of a subscription filter.
type Kind int

const (
	// KindExact filters contain no wildcard and match one topic.
	KindExact Kind = iota
	// KindPrefix filters end with "<sep><multi-level>" and have no other wildcard.
	KindPrefix
	// KindSegment filters are matched level by level.
	KindSegment
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindPrefix:
		return "prefix"
	case KindSegment:
		return "segment"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TokenKind is the classification of one level of a segment filter.
type TokenKind int

const (
	Literal TokenKind = iota
	SingleLevelWildcard
	MultiLevelWildcardFromHere
	// LiteralPrefix matches any level starting with Token.Text, e.g. "abc+".
	LiteralPrefix
)

func (k TokenKind) String() string {
	switch k {
	case Literal:
		return "literal"
	case SingleLevelWildcard:
		return "single"
	case MultiLevelWildcardFromHere:
		return "multi"
	case LiteralPrefix:
		return "literal-prefix"
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

// Token is one level of a segment filter.
type Token struct {
	Kind TokenKind
	Text string
}

func (t Token) String() string {
	switch t.Kind {
	case Literal, LiteralPrefix:
		return fmt.Sprintf("%s(%q)", t.Kind, t.Text)
	default:
		return t.Kind.String()
	}
}

// Filter is a classified subscription filter. Pattern and Prefix are stored
// with "/" separators regardless of the binding the filter was classified with.
type Filter struct {
	Raw     string
	Kind    Kind
	Pattern string
	Prefix  string
	Tokens  []Token
}

func (f Filter) String() string {
	return f.Raw
}

// Classify turns a raw filter string into an exact, prefix or segment filter
// using the wildcard dialect of b.
func Classify(pattern string, b Binding) (Filter, error) {
	if pattern == "" {
		return Filter{}, fmt.Errorf("%w: filter cannot be empty", ErrInvalidFilter)
	}

	segments := strings.Split(pattern, b.Separator)
	last := len(segments) - 1

	wildcard := false
	for i, segment := range segments {
		if i != last && strings.Contains(segment, b.MultiLevel) {
			return Filter{}, fmt.Errorf("%w: multi-level wildcard (%s) must be the last segment of %q",
				ErrInvalidFilter, b.MultiLevel, pattern)
		}
		if b.HasWildcard(segment) {
			wildcard = true
		}
	}

	f := Filter{
		Raw:     pattern,
		Pattern: strings.Join(segments, Separator),
	}

	if !wildcard {
		f.Kind = KindExact
		return f, nil
	}

	if last > 0 && segments[last] == b.MultiLevel && !anyWildcard(segments[:last], b) {
		f.Kind = KindPrefix
		f.Prefix = strings.Join(segments[:last], Separator)
		return f, nil
	}

	f.Kind = KindSegment
	f.Tokens = make([]Token, len(segments))
	for i, segment := range segments {
		f.Tokens[i] = classifySegment(segment, b)
	}
	return f, nil
}

// MustClassify is like Classify with the generic binding but panics on error.
func MustClassify(pattern string) Filter {
	f, err := Classify(pattern, Generic)
	if err != nil {
		panic(err)
	}
	return f
}

func classifySegment(segment string, b Binding) Token {
	switch {
	case segment == b.SingleLevel:
		return Token{Kind: SingleLevelWildcard}
	case strings.Contains(segment, b.MultiLevel):
		return Token{Kind: MultiLevelWildcardFromHere}
	case len(segment) > len(b.SingleLevel) && strings.HasSuffix(segment, b.SingleLevel):
		return Token{Kind: LiteralPrefix, Text: strings.TrimSuffix(segment, b.SingleLevel)}
	default:
		return Token{Kind: Literal, Text: segment}
	}
}

func anyWildcard(segments []string, b Binding) bool {
	for _, segment := range segments {
		if b.HasWildcard(segment) {
			return true
		}
	}
	return false
}
