package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(i int) *int { return &i }

func TestSliceIndices(t *testing.T) {
	tests := []struct {
		name  string
		slice Slice
		want  []int
	}{
		{"full", Full, []int{0, 1, 2, 3, 4, 5}},
		{"range", Range(1, 3), []int{1, 2}},
		{"stepped", Slice{Start: intp(1), Step: intp(2)}, []int{1, 3, 5}},
		{"negative bounds", Range(-4, -2), []int{2, 3}},
		{"reversed", Slice{Step: intp(-1)}, []int{5, 4, 3, 2, 1, 0}},
		{"reversed bounded", Slice{Start: intp(4), Stop: intp(1), Step: intp(-1)}, []int{4, 3, 2}},
		{"clamped low", Range(-100, 2), []int{0, 1}},
		{"clamped high", Range(4, 100), []int{4, 5}},
		{"past end", Range(10, 20), nil},
		{"empty", Range(3, 3), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.slice.Indices(6)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSliceIndices_ZeroStep(t *testing.T) {
	_, err := Slice{Step: intp(0)}.Indices(3)
	assert.Error(t, err)
}

func TestSliceString(t *testing.T) {
	assert.Equal(t, "1:3", Range(1, 3).String())
	assert.Equal(t, ":", Full.String())
	assert.Equal(t, "::-1", Slice{Step: intp(-1)}.String())
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		expr  string
		kind  KeyKind
		index int
		text  string
	}{
		{"", KeyAll, 0, ""},
		{"3", KeyIndex, 3, ""},
		{"-1", KeyIndex, -1, ""},
		{" 2 ", KeyIndex, 2, ""},
		{"1:3", KeyRange, 0, ""},
		{"::2", KeyRange, 0, ""},
		{"-4:-2", KeyRange, 0, ""},
		{"git:main", KeyFuzzy, 0, "git:main"},
		{"ls -la", KeyFuzzy, 0, "ls -la"},
		{"1:2:3:4", KeyFuzzy, 0, "1:2:3:4"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			k, err := ParseKey(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, k.Kind)
			if tt.kind == KeyIndex {
				assert.Equal(t, tt.index, k.Index)
			}
			if tt.kind == KeyFuzzy {
				assert.Equal(t, tt.text, k.Text)
			}
		})
	}
}

func TestParseKey_ZeroStep(t *testing.T) {
	_, err := ParseKey("1:2:0")
	assert.Error(t, err)
}

func TestParseSlice(t *testing.T) {
	tests := []struct {
		expr string
		want []int
	}{
		{"", []int{0, 1, 2}},
		{"-1", []int{2}},
		{"0", []int{0}},
		{"1", []int{1}},
		{"1:", []int{1, 2}},
		{"::-1", []int{2, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSlice(tt.expr)
			require.NoError(t, err)
			got, err := s.Indices(3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSlice("kitty")
	assert.Error(t, err)
}
