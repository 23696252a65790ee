package builtins

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/rash/core/types"
)

func TestParseTemplate(t *testing.T) {
	params := []Param{
		{Name: "a", Type: types.Str},
		{Name: "b", Type: types.Str, Literal: true},
	}

	tests := []struct {
		name     string
		src      string
		kind     Kind
		segments []Segment
	}{
		{
			name: "quoted_args",
			src:  "cp -- %0 %1",
			kind: KindCommand,
			segments: []Segment{
				{Text: "cp -- ", Arg: -1},
				{Arg: 0},
				{Text: " ", Arg: -1},
				{Arg: 1},
			},
		},
		{
			name:     "raw_arg",
			src:      "export %i1=%0",
			kind:     KindCommand,
			segments: []Segment{{Arg: 1, Raw: true}, {Text: "=", Arg: -1}, {Arg: 0}},
		},
		{
			name:     "percent_escape",
			src:      "printf %% %0",
			kind:     KindCommand,
			segments: []Segment{{Text: "printf % ", Arg: -1}, {Arg: 0}},
		},
		{
			name:     "value_raw",
			src:      "${%i1-}",
			kind:     KindValue,
			segments: []Segment{{Text: "${", Arg: -1}, {Arg: 1, Raw: true}, {Text: "-}", Arg: -1}},
		},
		{
			name:     "value_substitution",
			src:      "$(printf '%%s' %0 | tr a-z A-Z)",
			kind:     KindValue,
			segments: []Segment{{Text: "$(printf '%s' ", Arg: -1}, {Arg: 0}, {Text: " | tr a-z A-Z)", Arg: -1}},
		},
		{
			name:     "nested_parens",
			src:      "$(f (x) %0)",
			kind:     KindValue,
			segments: []Segment{{Text: "$(f (x) ", Arg: -1}, {Arg: 0}, {Text: ")", Arg: -1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTemplate(tt.src, tt.kind, params)
			require.NoError(t, err)
			assert.Equal(t, tt.src, got.Source)
			if diff := cmp.Diff(tt.segments, got.Segments); diff != "" {
				t.Errorf("segments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseTemplateErrors(t *testing.T) {
	params := []Param{{Name: "a", Type: types.Str}}

	tests := []struct {
		name    string
		src     string
		kind    Kind
		wantErr string
	}{
		{"dangling", "echo %", KindCommand, "dangling"},
		{"malformed", "echo %x", KindCommand, "malformed placeholder"},
		{"out_of_range", "echo %1", KindCommand, "missing parameter"},
		{"huge_index", "echo %99999999999999999999", KindCommand, "missing parameter"},
		{"raw_non_literal", "echo %i0", KindCommand, "requires literal parameter"},
		{"value_bare_quoted", "x%0", KindValue, "must be inside $(...)"},
		{"value_double_quote", `a"b`, KindValue, "cannot contain"},
		{"unclosed_subst", "$(echo %0", KindValue, "unclosed"},
		{"after_subst_closes", "$(echo) %0", KindValue, "must be inside $(...)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate(tt.src, tt.kind, params)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpand(t *testing.T) {
	tmpl, err := ParseTemplate("export %i1=%0", KindCommand, []Param{
		{Name: "value", Type: types.Str},
		{Name: "name", Type: types.Str, Literal: true},
	})
	require.NoError(t, err)

	got := tmpl.Expand(func(idx int, raw bool) string {
		return fmt.Sprintf("<%d:%t>", idx, raw)
	})
	assert.Equal(t, "export <1:true>=<0:false>", got)
	assert.True(t, tmpl.Uses(0))
	assert.True(t, tmpl.Uses(1))
	assert.False(t, tmpl.Uses(2))
}
