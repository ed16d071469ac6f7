// Package script parses the inline markup used by the editor:
//
//	[voice en-US-AriaNeural]: hello [pause 2] world
//	[voice en-US-GuyNeural]: and now someone else
//
// A [voice <id>]: tag switches the active voice for everything that follows,
// [pause <n>] splices n seconds of silence and splits the surrounding text.
// Untagged text belongs to the caller-supplied default voice.
package script

import (
	"fmt"
	"strconv"
	"strings"
)

type SegmentType int

const (
	SegmentVoice SegmentType = iota
	SegmentPause
)

// Segment is immutable once parsed. For SegmentVoice, VoiceID and Text are
// set; for SegmentPause only Duration is.
type Segment struct {
	Type     SegmentType
	VoiceID  string
	Text     string
	Duration float64 // seconds
}

type Script struct {
	Segments []Segment
}

// ParseError points at the exact token that could not be understood. Malformed
// tags are never skipped silently.
type ParseError struct {
	Line   int
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: invalid tag %q: %s", e.Line, e.Token, e.Reason)
}

// Render serializes the segments back into tag form. A voice tag is only
// emitted when the voice actually changes, so Parse(s.Render(), v) yields the
// same segment sequence for any s produced by Parse.
func (s Script) Render() string {
	var b strings.Builder
	currentVoice := ""
	for i, seg := range s.Segments {
		switch seg.Type {
		case SegmentPause:
			b.WriteString(fmt.Sprintf("[pause %s]", formatDuration(seg.Duration)))
		case SegmentVoice:
			if i == 0 || seg.VoiceID != currentVoice {
				b.WriteString(fmt.Sprintf("[voice %s]: ", seg.VoiceID))
				currentVoice = seg.VoiceID
			}
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

func formatDuration(seconds float64) string {
	// %g can fall into scientific notation which the pause grammar rejects.
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}
