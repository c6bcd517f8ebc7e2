package answer

import (
	"fmt"
	"strings"
)

// Sink receives normalized answer deltas in order.
type Sink func(delta string) error

// Composer normalizes a streamed completion incrementally: stray
// emphasis markers are trimmed from line starts and ends, runs of
// blank lines collapse to one paragraph break, and newlines are
// rendered with the configured break token.
//
// Output order matches input order; at most one incomplete line is
// buffered while waiting for its boundary.
type Composer struct {
	sink      Sink
	lineBreak string

	partial strings.Builder
	// seps counts newlines seen since the last emitted line. One
	// renders as a line break, two or more as a paragraph break.
	seps    int
	started bool
}

// NewComposer wraps sink. An empty lineBreak keeps plain "\n".
func NewComposer(sink Sink, lineBreak string) *Composer {
	if lineBreak == "" {
		lineBreak = "\n"
	}
	return &Composer{sink: sink, lineBreak: lineBreak}
}

// Write consumes a raw delta from the model stream.
func (c *Composer) Write(delta string) error {
	for {
		i := strings.IndexByte(delta, '\n')
		if i < 0 {
			c.partial.WriteString(delta)
			return nil
		}
		c.partial.WriteString(delta[:i])
		if err := c.flushLine(); err != nil {
			return err
		}
		c.seps++
		delta = delta[i+1:]
	}
}

// flushLine normalizes and emits the buffered line. Lines that become
// empty only widen the pending separator.
func (c *Composer) flushLine() error {
	line := trimEmphasis(c.partial.String())
	c.partial.Reset()
	if line == "" {
		return nil
	}

	var out strings.Builder
	if c.started {
		breaks := c.seps
		if breaks > 2 {
			breaks = 2
		}
		for i := 0; i < breaks; i++ {
			out.WriteString(c.lineBreak)
		}
	}
	out.WriteString(line)

	c.started = true
	c.seps = 0
	return c.sink(out.String())
}

// Flush emits any buffered partial line. Call once when the model
// stream completes.
func (c *Composer) Flush() error {
	if c.partial.Len() == 0 {
		return nil
	}
	return c.flushLine()
}

// WriteFooter appends the citation and confidence annotation after the
// answer body.
func (c *Composer) WriteFooter(confidence int, citation string) error {
	var out strings.Builder
	if c.started {
		out.WriteString(c.lineBreak)
		out.WriteString(c.lineBreak)
	}
	fmt.Fprintf(&out, "— Confidence: %d%%", confidence)
	if citation != "" {
		fmt.Fprintf(&out, " · Source: %s", citation)
	}
	return c.sink(out.String())
}

// trimEmphasis strips leading and trailing '*' runs from a line.
func trimEmphasis(line string) string {
	return strings.Trim(line, "*")
}
