package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `[{"name":"a"}]`, `[{"name":"a"}]`},
		{"json fence", "```json\n[{\"name\":\"a\"}]\n```", `[{"name":"a"}]`},
		{"bare fence", "```\n[1]\n```", `[1]`},
		{"fence no newline", "```[1]```", `[1]`},
		{"surrounding whitespace", "  \n```json\n{}\n```\n ", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestParseItems_WholeArray(t *testing.T) {
	t.Parallel()

	res := ParseItems(`[{"name":"Login","goal":"authenticate"},{"name":"Logout"}]`)
	require.Len(t, res.Items, 2)
	assert.False(t, res.Incomplete)
	assert.Equal(t, "Login", res.Items[0].Name)
	assert.Equal(t, "authenticate", res.Items[0].Goal)
}

func TestParseItems_SingleObjectWrapped(t *testing.T) {
	t.Parallel()

	res := ParseItems(`{"name":"Login"}`)
	require.Len(t, res.Items, 1)
	assert.False(t, res.Incomplete)
	assert.Equal(t, "Login", res.Items[0].Name)
}

func TestParseItems_Fenced(t *testing.T) {
	t.Parallel()

	res := ParseItems("```json\n[{\"name\":\"Login\"}]\n```")
	require.Len(t, res.Items, 1)
	assert.False(t, res.Incomplete)
}

func TestParseItems_ArrayWithSurroundingProse(t *testing.T) {
	t.Parallel()

	res := ParseItems(`Here are the use cases: [{"name":"Login"},{"name":"Logout"}] hope that helps`)
	require.Len(t, res.Items, 2)
	assert.False(t, res.Incomplete)
}

func TestParseItems_TruncatedArray(t *testing.T) {
	t.Parallel()

	res := ParseItems(`[{"name":"Login","goal":"auth"},{"name":"Log`)
	require.Len(t, res.Items, 1)
	assert.True(t, res.Incomplete)
	assert.Equal(t, "Login", res.Items[0].Name)
}

func TestParseItems_TruncatedBetweenElements(t *testing.T) {
	t.Parallel()

	res := ParseItems(`[{"name":"Login"},{"name":"Logout"},`)
	require.Len(t, res.Items, 2)
	assert.True(t, res.Incomplete)
}

func TestParseItems_NDJSON(t *testing.T) {
	t.Parallel()

	res := ParseItems("{\"name\":\"Login\"}\n{\"name\":\"Logout\"}\nnot json\n")
	require.Len(t, res.Items, 2)
	assert.False(t, res.Incomplete)
	assert.Equal(t, "Logout", res.Items[1].Name)
}

func TestParseItems_ObjectFragments(t *testing.T) {
	t.Parallel()

	res := ParseItems(`The model returned {"name":"Login"} followed by {"name":"Logout"} inline`)
	require.Len(t, res.Items, 2)
	assert.True(t, res.Incomplete, "fragment scanning cannot prove completeness")
}

func TestParseItems_ScalarBecomesName(t *testing.T) {
	t.Parallel()

	res := ParseItems(`["Login", {"name":"Logout"}]`)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Login", res.Items[0].Name)
	assert.Equal(t, "Logout", res.Items[1].Name)
}

func TestParseItems_BracketInsideString(t *testing.T) {
	t.Parallel()

	res := ParseItems(`[{"name":"Handle ] bracket"},{"name":"Quote \" and [ too"}]`)
	require.Len(t, res.Items, 2)
	assert.False(t, res.Incomplete)
	assert.Equal(t, `Handle ] bracket`, res.Items[0].Name)
}

func TestParseItems_EmptyAndGarbage(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseItems("").Items)
	assert.Empty(t, ParseItems("[]").Items)
	assert.Empty(t, ParseItems("nothing structured here").Items)
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    bool
		wantErr bool
	}{
		{"duplicate true", `{"duplicate": true}`, true, false},
		{"duplicate false", `{"duplicate": false}`, false, false},
		{"conflict key", `{"conflict": true}`, true, false},
		{"fenced", "```json\n{\"duplicate\": true}\n```", true, false},
		{"bare bool", "false", false, false},
		{"garbage", "I cannot answer that", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseVerdict(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
