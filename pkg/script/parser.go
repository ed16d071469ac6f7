package script

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	voiceIDRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*$`)
	pauseRe   = regexp.MustCompile(`(?i)^pause\s*(\d+(?:\.\d+)?)\s*(?:s|sec|seconds)?$`)
)

// Parse turns one text block into an ordered Script. Untagged text is spoken
// with defaultVoice. Any bracket token that is not a well-formed voice or
// pause tag - including a literal stray "[" or "]" - fails with *ParseError
// rather than being guessed at.
func Parse(text, defaultVoice string) (Script, error) {
	p := &parser{
		input:        text,
		activeVoice:  defaultVoice,
		atBlockStart: true,
	}
	return p.run()
}

type parser struct {
	input        string
	pos          int
	activeVoice  string
	atBlockStart bool

	buffer   strings.Builder
	segments []Segment
}

func (p *parser) run() (Script, error) {
	for p.pos < len(p.input) {
		open := strings.IndexByte(p.input[p.pos:], '[')
		if open < 0 {
			if err := p.text(p.input[p.pos:]); err != nil {
				return Script{}, err
			}
			p.pos = len(p.input)
			break
		}
		if err := p.text(p.input[p.pos : p.pos+open]); err != nil {
			return Script{}, err
		}
		p.pos += open
		if err := p.tag(); err != nil {
			return Script{}, err
		}
	}
	p.flush()
	return Script{Segments: p.segments}, nil
}

// text consumes a run of plain text between tags.
func (p *parser) text(run string) error {
	if idx := strings.IndexByte(run, ']'); idx >= 0 {
		return &ParseError{
			Line:   p.lineAt(p.pos + idx),
			Token:  "]",
			Reason: "stray ']' outside a tag; literal brackets are not supported",
		}
	}
	if strings.TrimSpace(run) == "" {
		return nil // whitespace between tags carries no speech
	}
	if p.atBlockStart {
		run = strings.TrimLeft(run, " \t")
	}
	p.atBlockStart = false
	p.buffer.WriteString(run)
	return nil
}

// tag consumes one [...] token starting at p.pos.
func (p *parser) tag() error {
	start := p.pos
	closing := strings.IndexByte(p.input[start:], ']')
	if closing < 0 {
		return &ParseError{
			Line:   p.lineAt(start),
			Token:  truncateToken(p.input[start:]),
			Reason: "unclosed '['; literal brackets are not supported",
		}
	}
	token := p.input[start : start+closing+1]
	content := strings.TrimSpace(p.input[start+1 : start+closing])
	p.pos = start + closing + 1

	keyword := strings.ToLower(content)
	if i := strings.IndexAny(content, " \t"); i >= 0 {
		keyword = strings.ToLower(content[:i])
	}

	switch {
	case keyword == "voice":
		return p.voiceTag(token, content)
	case strings.HasPrefix(keyword, "pause"):
		// [pause2] is accepted the same as [pause 2].
		return p.pauseTag(token, content)
	default:
		return &ParseError{
			Line:   p.lineAt(start),
			Token:  token,
			Reason: "unknown tag; expected [voice <id>]: or [pause <seconds>]",
		}
	}
}

func (p *parser) voiceTag(token, content string) error {
	tagLine := p.lineAt(p.pos - len(token))
	id := strings.TrimSpace(content[len("voice"):])
	if id == "" {
		return &ParseError{Line: tagLine, Token: token, Reason: "missing voice id"}
	}
	if !voiceIDRe.MatchString(id) {
		return &ParseError{Line: tagLine, Token: token, Reason: "voice id has unexpected format"}
	}

	// The colon sits outside the bracket: [voice x]: ...
	rest := p.input[p.pos:]
	trimmed := strings.TrimLeft(rest, " \t")
	if !strings.HasPrefix(trimmed, ":") {
		return &ParseError{Line: tagLine, Token: token, Reason: "voice tag must be followed by ':'"}
	}
	p.pos += len(rest) - len(trimmed) + 1
	// Swallow the single conventional space after the colon so segment text
	// starts with the spoken words. Only one, so Render stays an exact inverse.
	if p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}

	p.atBlockStart = false
	if id != p.activeVoice {
		p.flush()
		p.activeVoice = id
	}
	return nil
}

func (p *parser) pauseTag(token, content string) error {
	tagLine := p.lineAt(p.pos - len(token))
	m := pauseRe.FindStringSubmatch(content)
	if m == nil {
		return &ParseError{Line: tagLine, Token: token, Reason: "unparsable pause duration"}
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return &ParseError{Line: tagLine, Token: token, Reason: "unparsable pause duration"}
	}

	p.atBlockStart = false
	p.flush()
	p.segments = append(p.segments, Segment{Type: SegmentPause, Duration: seconds})
	return nil
}

// flush closes the currently buffered text into a voice segment. Adjacent
// same-voice fragments merge here because the buffer only flushes on a voice
// change, a pause or end of input.
func (p *parser) flush() {
	if p.buffer.Len() == 0 {
		return
	}
	p.segments = append(p.segments, Segment{
		Type:    SegmentVoice,
		VoiceID: p.activeVoice,
		Text:    p.buffer.String(),
	})
	p.buffer.Reset()
}

func (p *parser) lineAt(pos int) int {
	if pos > len(p.input) {
		pos = len(p.input)
	}
	return 1 + strings.Count(p.input[:pos], "\n")
}

func truncateToken(s string) string {
	if len(s) > 24 {
		return s[:24] + "..."
	}
	return s
}
