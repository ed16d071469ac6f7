package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainTextUsesDefaultVoice(t *testing.T) {
	scr, err := Parse("hello there", "en-US-AriaNeural")
	require.NoError(t, err)
	require.Len(t, scr.Segments, 1)
	assert.Equal(t, SegmentVoice, scr.Segments[0].Type)
	assert.Equal(t, "en-US-AriaNeural", scr.Segments[0].VoiceID)
	assert.Equal(t, "hello there", scr.Segments[0].Text)
}

func TestParsePauseSplitsVoiceSegment(t *testing.T) {
	scr, err := Parse("[voice A]: hello [pause 2] world", "default")
	require.NoError(t, err)

	require.Len(t, scr.Segments, 3)
	assert.Equal(t, Segment{Type: SegmentVoice, VoiceID: "A", Text: "hello "}, scr.Segments[0])
	assert.Equal(t, Segment{Type: SegmentPause, Duration: 2.0}, scr.Segments[1])
	assert.Equal(t, Segment{Type: SegmentVoice, VoiceID: "A", Text: " world"}, scr.Segments[2])
}

func TestParseVoiceSwitch(t *testing.T) {
	scr, err := Parse("intro [voice en-US-GuyNeural]: guy part [voice en-US-AriaNeural]: aria part", "narrator")
	require.NoError(t, err)

	require.Len(t, scr.Segments, 3)
	assert.Equal(t, "narrator", scr.Segments[0].VoiceID)
	assert.Equal(t, "intro ", scr.Segments[0].Text)
	assert.Equal(t, "en-US-GuyNeural", scr.Segments[1].VoiceID)
	assert.Equal(t, "guy part ", scr.Segments[1].Text)
	assert.Equal(t, "en-US-AriaNeural", scr.Segments[2].VoiceID)
	assert.Equal(t, "aria part", scr.Segments[2].Text)
}

func TestParseMergesAdjacentSameVoiceText(t *testing.T) {
	scr, err := Parse("[voice A]: one [voice A]: two", "default")
	require.NoError(t, err)

	require.Len(t, scr.Segments, 1)
	assert.Equal(t, "one two", scr.Segments[0].Text)
}

func TestParsePauseUnits(t *testing.T) {
	for _, in := range []string{"[pause 1.5]", "[pause 1.5s]", "[pause 1.5 sec]", "[pause 1.5 seconds]"} {
		scr, err := Parse(in, "v")
		require.NoError(t, err, in)
		require.Len(t, scr.Segments, 1, in)
		assert.Equal(t, 1.5, scr.Segments[0].Duration, in)
	}
}

func TestParseMultilineKeepsVoiceAcrossLines(t *testing.T) {
	scr, err := Parse("[voice A]: first line\nsecond line\n[pause 1]\nthird", "default")
	require.NoError(t, err)

	require.Len(t, scr.Segments, 3)
	assert.Equal(t, "first line\nsecond line\n", scr.Segments[0].Text)
	assert.Equal(t, SegmentPause, scr.Segments[1].Type)
	assert.Equal(t, "A", scr.Segments[2].VoiceID)
	assert.Equal(t, "third", scr.Segments[2].Text)
}

func TestParseMalformedTags(t *testing.T) {
	cases := map[string]string{
		"missing voice id":       "[voice]: hi",
		"missing voice id space": "[voice ]: hi",
		"voice id format":        "[voice en US]: hi",
		"missing colon":          "[voice A] hi",
		"bad pause duration":     "[pause two]",
		"negative pause":         "[pause -2]",
		"unknown tag":            "[volume 11]",
		"unclosed bracket":       "hello [pause 2",
		"stray close bracket":    "hello ] world",
	}
	for name, in := range cases {
		_, err := Parse(in, "v")
		require.Error(t, err, name)
		var perr *ParseError
		require.ErrorAs(t, err, &perr, name)
		assert.NotEmpty(t, perr.Reason, name)
	}
}

func TestParseErrorReportsLine(t *testing.T) {
	_, err := Parse("fine first line\nfine second\n[voice]: broken", "v")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Line)
	assert.Equal(t, "[voice]", perr.Token)
}

func TestRenderRoundTrip(t *testing.T) {
	inputs := []string{
		"plain text only",
		"[voice A]: hello [pause 2] world",
		"[voice A]: a [pause 0.5] b [voice B]: c",
		"intro [voice B]: middle [pause 3] tail",
		"[pause 1] leading pause",
	}
	for _, in := range inputs {
		first, err := Parse(in, "default")
		require.NoError(t, err, in)

		second, err := Parse(first.Render(), "default")
		require.NoError(t, err, in)
		assert.Equal(t, first.Segments, second.Segments, in)
	}
}

func TestParseSkipsWhitespaceOnlyRuns(t *testing.T) {
	scr, err := Parse("[pause 1]   [pause 2]", "v")
	require.NoError(t, err)
	require.Len(t, scr.Segments, 2)
	assert.Equal(t, SegmentPause, scr.Segments[0].Type)
	assert.Equal(t, SegmentPause, scr.Segments[1].Type)
}
