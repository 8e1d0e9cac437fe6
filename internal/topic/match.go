package topic

import "strings"

// Match reports whether topic t is selected by filter f.
func Match(t Topic, f Filter) bool {
	switch f.Kind {
	case KindExact:
		return t.name == f.Pattern
	case KindPrefix:
		// a trailing multi-level wildcard also matches the parent level
		return t.name == f.Prefix || strings.HasPrefix(t.name, f.Prefix+Separator)
	case KindSegment:
		return matchTokens(t.levels, f.Tokens)
	default:
		return false
	}
}

func matchTokens(levels []string, tokens []Token) bool {
	for i, tok := range tokens {
		if tok.Kind == MultiLevelWildcardFromHere {
			return true
		}
		if i >= len(levels) {
			return false
		}

		level := levels[i]
		switch tok.Kind {
		case Literal:
			if level != tok.Text {
				return false
			}
		case SingleLevelWildcard:
			if level == "" {
				return false
			}
		case LiteralPrefix:
			if !strings.HasPrefix(level, tok.Text) {
				return false
			}
		}
	}

	return len(levels) == len(tokens)
}
