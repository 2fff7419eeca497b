package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestReasoningMapperEffortBands(t *testing.T) {
	mapper, ok := mapperFor("reasoning")
	require.True(t, ok)

	cases := []struct {
		temperature float64
		effort      string
	}{
		{0.2, "low"},
		{0.5, "medium"},
		{0.9, "high"},
		{0.0, "low"},
		{0.34, "low"},
		{0.35, "medium"},
		{0.74, "medium"},
		{0.75, "high"},
	}

	for _, tc := range cases {
		out := mapper.Map(Params{Temperature: floatPtr(tc.temperature)})
		assert.Equal(t, tc.effort, out.Effort, "temperature %v", tc.temperature)
	}
}

func TestReasoningMapperExplicitEffortWins(t *testing.T) {
	mapper, _ := mapperFor("reasoning")
	out := mapper.Map(Params{Temperature: floatPtr(0.9), Effort: "low"})
	assert.Equal(t, "low", out.Effort)
}

func TestReasoningMapperDropsUnsupported(t *testing.T) {
	mapper, _ := mapperFor("reasoning")
	out := mapper.Map(Params{
		Temperature:      floatPtr(0.5),
		TopP:             floatPtr(0.95),
		FrequencyPenalty: floatPtr(0.1),
	})

	assert.Nil(t, out.TopP)
	assert.Nil(t, out.FrequencyPenalty)
	assert.ElementsMatch(t, []string{"top_p", "frequency_penalty"}, out.Dropped)
}

func TestLegacyMapperPassesThrough(t *testing.T) {
	mapper, ok := mapperFor("legacy")
	require.True(t, ok)

	out := mapper.Map(Params{
		Temperature: floatPtr(0.7),
		TopP:        floatPtr(0.9),
		MaxTokens:   256,
	})

	require.NotNil(t, out.Temperature)
	assert.Equal(t, 0.7, *out.Temperature)
	require.NotNil(t, out.TopP)
	assert.Equal(t, 0.9, *out.TopP)
	assert.Equal(t, 256, out.MaxTokens)
	assert.Empty(t, out.Dropped)
	assert.Empty(t, out.Effort)
}

func TestMapperForUnknownFamily(t *testing.T) {
	_, ok := mapperFor("quantum")
	assert.False(t, ok)
}
