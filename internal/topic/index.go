package topic

// Index holds classified filters keyed by their raw string. Exact filters are
// looked up directly; prefix and segment filters are walked one by one, which
// is cheap at the expected scale of tens of filters.
//
// Index is not safe for concurrent use.
type Index struct {
	filters map[string]Filter
	exact   map[string]string // normalized pattern -> raw
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		filters: make(map[string]Filter),
		exact:   make(map[string]string),
	}
}

// Add stores f, replacing any filter with the same raw string.
func (x *Index) Add(f Filter) {
	x.filters[f.Raw] = f
	if f.Kind == KindExact {
		x.exact[f.Pattern] = f.Raw
	}
}

// Remove deletes the filter with the given raw string. It reports whether
// the filter was present.
func (x *Index) Remove(raw string) bool {
	f, ok := x.filters[raw]
	if !ok {
		return false
	}
	delete(x.filters, raw)
	if f.Kind == KindExact {
		delete(x.exact, f.Pattern)
	}
	return true
}

// Get returns the filter stored under raw.
func (x *Index) Get(raw string) (Filter, bool) {
	f, ok := x.filters[raw]
	return f, ok
}

// Len returns the number of stored filters.
func (x *Index) Len() int {
	return len(x.filters)
}

// Filters returns every stored filter in no particular order.
func (x *Index) Filters() []Filter {
	out := make([]Filter, 0, len(x.filters))
	for _, f := range x.filters {
		out = append(out, f)
	}
	return out
}

// Matching returns every stored filter selecting t. A topic can match any
// number of filters and there is no precedence between kinds.
func (x *Index) Matching(t Topic) []Filter {
	matches := make([]Filter, 0)

	if raw, ok := x.exact[t.name]; ok {
		matches = append(matches, x.filters[raw])
	}

	for _, f := range x.filters {
		if f.Kind == KindExact {
			continue
		}
		if Match(t, f) {
			matches = append(matches, f)
		}
	}

	return matches
}
