package dispatch

import (
	"strings"
	"unicode"
)

// Opening quote -> closing quote.
var quotes = map[rune]rune{
	'"':      '"',
	'\u2018': '\u2019', // ‘’
	'\u201a': '\u201b', // ‚‛
	'\u201c': '\u201d', // “”
	'\u201e': '\u201f', // „‟
	'\u2e42': '\u2e42', // ⹂⹂
	'\u300c': '\u300d', // 「」
	'\u300e': '\u300f', // 『』
	'\u301d': '\u301e', // 〝〞
	'\ufe41': '\ufe42', // ﹁﹂
	'\ufe43': '\ufe44', // ﹃﹄
	'\uff02': '\uff02', // ＂＂
	'\uff62': '\uff63', // ｢｣
	'\u00ab': '\u00bb', // «»
	'\u2039': '\u203a', // ‹›
	'\u300a': '\u300b', // 《》
	'\u3008': '\u3009', // 〈〉
}

var allQuotes = func() map[rune]bool {
	m := make(map[rune]bool, len(quotes)*2)
	for open, close := range quotes {
		m[open] = true
		m[close] = true
	}
	return m
}()

// Cursor is a position-aware view over a command string. It remembers one
// previous index for Undo.
type Cursor struct {
	buffer   []rune
	index    int
	previous int
}

func NewCursor(s string) *Cursor {
	return &Cursor{buffer: []rune(s)}
}

func (c *Cursor) Index() int {
	return c.index
}

// SetIndex moves to i and records the old position for Undo.
func (c *Cursor) SetIndex(i int) {
	c.previous = c.index
	c.index = min(max(i, 0), len(c.buffer))
}

func (c *Cursor) Len() int {
	return len(c.buffer)
}

func (c *Cursor) EOF() bool {
	return c.index >= len(c.buffer)
}

func (c *Cursor) Undo() {
	c.index = c.previous
}

func (c *Cursor) Peek() (rune, bool) {
	if c.EOF() {
		return 0, false
	}
	return c.buffer[c.index], true
}

func (c *Cursor) Next() (rune, bool) {
	if c.EOF() {
		return 0, false
	}
	r := c.buffer[c.index]
	c.previous = c.index
	c.index++
	return r, true
}

// SkipString consumes s if the buffer continues with it.
func (c *Cursor) SkipString(s string) bool {
	want := []rune(s)
	end := c.index + len(want)
	if end > len(c.buffer) || string(c.buffer[c.index:end]) != s {
		return false
	}
	c.previous = c.index
	c.index = end
	return true
}

// SkipWhitespace reports whether any whitespace was skipped.
func (c *Cursor) SkipWhitespace() bool {
	pos := c.index
	for pos < len(c.buffer) && unicode.IsSpace(c.buffer[pos]) {
		pos++
	}
	c.previous = c.index
	c.index = pos
	return c.previous != c.index
}

// GetWord reads up to the next whitespace without consuming it.
func (c *Cursor) GetWord() string {
	pos := c.index
	for pos < len(c.buffer) && !unicode.IsSpace(c.buffer[pos]) {
		pos++
	}
	word := string(c.buffer[c.index:pos])
	c.previous = c.index
	c.index = pos
	return word
}

func (c *Cursor) Read(n int) string {
	end := min(c.index+max(n, 0), len(c.buffer))
	result := string(c.buffer[c.index:end])
	c.previous = c.index
	c.index = end
	return result
}

func (c *Cursor) ReadRest() string {
	result := string(c.buffer[c.index:])
	c.previous = c.index
	c.index = len(c.buffer)
	return result
}

// GetQuotedWord reads one argument. A word opening with a known quote runs
// to its closing quote, which must be followed by whitespace or the end of
// the buffer; that whitespace is consumed. Backslash escapes the quote
// characters. On error the index is left unchanged.
func (c *Cursor) GetQuotedWord() (string, error) {
	if c.EOF() {
		return "", nil
	}
	start := c.index
	pos := start
	first := c.buffer[pos]
	pos++

	closeQuote, quoted := quotes[first]
	escapable := func(r rune) bool { return allQuotes[r] }
	var result strings.Builder
	if quoted {
		escapable = func(r rune) bool { return r == first || r == closeQuote }
	} else {
		result.WriteRune(first)
	}

	finish := func(end int) (string, error) {
		c.previous = start
		c.index = end
		return result.String(), nil
	}

	for pos < len(c.buffer) {
		r := c.buffer[pos]
		pos++

		if r == '\\' {
			if pos < len(c.buffer) && escapable(c.buffer[pos]) {
				result.WriteRune(c.buffer[pos])
				pos++
			} else {
				result.WriteRune(r)
			}
			continue
		}

		if !quoted && allQuotes[r] {
			return "", &UnexpectedQuoteError{Quote: r}
		}

		if quoted && r == closeQuote {
			if pos < len(c.buffer) {
				if next := c.buffer[pos]; !unicode.IsSpace(next) {
					return "", &InvalidEndOfQuotedStringError{Char: next}
				}
				pos++
			}
			return finish(pos)
		}

		if !quoted && unicode.IsSpace(r) {
			return finish(pos)
		}
		result.WriteRune(r)
	}

	if quoted {
		return "", &ExpectedClosingQuoteError{CloseQuote: closeQuote}
	}
	return finish(pos)
}

func (c *Cursor) String() string {
	return string(c.buffer[:c.index]) + "|" + string(c.buffer[c.index:])
}
