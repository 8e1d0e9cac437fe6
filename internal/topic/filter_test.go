package topic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		pattern    string
		binding    Binding
		wantKind   Kind
		wantPrefix string
		wantTokens []Token
		wantErr    bool
	}{
		{
			name:     "Exact topic",
			pattern:  "sport/tennis/player1",
			binding:  MQTT,
			wantKind: KindExact,
		},
		{
			name:       "Trailing multi-level wildcard",
			pattern:    "sport/tennis/player1/#",
			binding:    MQTT,
			wantKind:   KindPrefix,
			wantPrefix: "sport/tennis/player1",
		},
		{
			name:     "Single-level wildcard",
			pattern:  "sport/tennis/+/score",
			binding:  MQTT,
			wantKind: KindSegment,
			wantTokens: []Token{
				{Kind: Literal, Text: "sport"},
				{Kind: Literal, Text: "tennis"},
				{Kind: SingleLevelWildcard},
				{Kind: Literal, Text: "score"},
			},
		},
		{
			name:     "Single-level and multi-level wildcards",
			pattern:  "sport/+/#",
			binding:  MQTT,
			wantKind: KindSegment,
			wantTokens: []Token{
				{Kind: Literal, Text: "sport"},
				{Kind: SingleLevelWildcard},
				{Kind: MultiLevelWildcardFromHere},
			},
		},
		{
			name:     "Literal prefix segment",
			pattern:  "devices/abc+/status",
			binding:  MQTT,
			wantKind: KindSegment,
			wantTokens: []Token{
				{Kind: Literal, Text: "devices"},
				{Kind: LiteralPrefix, Text: "abc"},
				{Kind: Literal, Text: "status"},
			},
		},
		{
			name:       "Only multi-level wildcard",
			pattern:    "#",
			binding:    MQTT,
			wantKind:   KindSegment,
			wantTokens: []Token{{Kind: MultiLevelWildcardFromHere}},
		},
		{
			name:       "NATS prefix",
			pattern:    "orders.eu.>",
			binding:    NATS,
			wantKind:   KindPrefix,
			wantPrefix: "orders/eu",
		},
		{
			name:     "NATS single-level",
			pattern:  "orders.*.created",
			binding:  NATS,
			wantKind: KindSegment,
			wantTokens: []Token{
				{Kind: Literal, Text: "orders"},
				{Kind: SingleLevelWildcard},
				{Kind: Literal, Text: "created"},
			},
		},
		{
			name:    "Multi-level wildcard in the middle",
			pattern: "sport/#/score",
			binding: MQTT,
			wantErr: true,
		},
		{
			name:    "Multi-level wildcard glued to a middle segment",
			pattern: "sport/ten#/score",
			binding: MQTT,
			wantErr: true,
		},
		{
			name:    "Empty pattern",
			pattern: "",
			binding: MQTT,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Classify(tt.pattern, tt.binding)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidFilter))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pattern, f.Raw)
			assert.Equal(t, tt.wantKind, f.Kind)
			assert.Equal(t, tt.wantPrefix, f.Prefix)
			assert.Equal(t, tt.wantTokens, f.Tokens)
		})
	}
}

func TestTranslateRoundTrip(t *testing.T) {
	patterns := []string{
		"sport/tennis/player1",
		"sport/tennis/+/score",
		"sport/#",
		"+/+/#",
		"#",
		"a/b+/c",
	}

	for _, p := range patterns {
		t.Run(p, func(t *testing.T) {
			out := Translate(p, Generic, NATS)
			assert.NotContains(t, out, "/")
			assert.Equal(t, p, Translate(out, NATS, Generic))
		})
	}

	assert.Equal(t, "orders.*.created.>", Translate("orders/+/created/#", Generic, NATS))
	assert.Equal(t, "a/b", Translate("a/b", Generic, MQTT))
}

func TestParseTopic(t *testing.T) {
	tp, err := ParseTopic("orders.eu.created", NATS)
	require.NoError(t, err)
	assert.Equal(t, "orders/eu/created", tp.String())
	assert.Equal(t, "orders.eu.created", tp.Format(NATS))
	assert.Equal(t, []string{"orders", "eu", "created"}, tp.Levels())

	tp, err = ParseTopic("a//b/", Generic)
	require.NoError(t, err)
	assert.Equal(t, "a//b/", tp.String())
	assert.Equal(t, 4, tp.Len())

	_, err = ParseTopic("", Generic)
	assert.True(t, errors.Is(err, ErrInvalidTopic))
}
