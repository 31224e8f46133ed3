// Package fence rechunks a streaming text sequence so that markdown code
// fences are never emitted split across two units. Providers chunk their
// output at arbitrary byte boundaries, which means a triple-backtick marker
// can arrive half in one delta and half in the next; relaying such deltas
// verbatim renders broken markdown in the browser mid-stream.
//
// The filter is a pure rechunking transform: concatenating every emitted
// unit, in order, reproduces the input exactly.
package fence

import "strings"

const marker = "```"

// Filter buffers partial fences across delta boundaries. One Filter serves
// exactly one stream session and is not safe for concurrent use; each
// session owns its own.
type Filter struct {
	buf string
}

func New() *Filter {
	return &Filter{}
}

// Push appends one incoming delta and returns the units that became ready
// to emit. A unit is either plain text outside any fence or one complete
// fence span, opening marker through closing marker inclusive.
//
// Plain text preceding an unterminated opening marker is flushed
// immediately, since it cannot be part of the fence and holding it back
// only hurts perceived latency. The fence body itself is withheld until its own
// closing marker arrives; this holds for every fence independently, even
// when a later fence opens while an earlier buffer position is still
// unresolved.
func (f *Filter) Push(delta string) []string {
	f.buf += delta

	var out []string
	for {
		open := strings.Index(f.buf, marker)
		if open < 0 {
			// Hold back a trailing run of one or two backticks: it may be
			// the front half of a marker split across deltas.
			keep := trailingBackticks(f.buf)
			if cut := len(f.buf) - keep; cut > 0 {
				out = append(out, f.buf[:cut])
				f.buf = f.buf[cut:]
			}
			return out
		}

		close := strings.Index(f.buf[open+len(marker):], marker)
		if close < 0 {
			// Fence not closed yet: flush the plain prefix, keep the rest.
			if open > 0 {
				out = append(out, f.buf[:open])
				f.buf = f.buf[open:]
			}
			return out
		}

		end := open + len(marker) + close + len(marker)
		if open > 0 {
			out = append(out, f.buf[:open])
		}
		out = append(out, f.buf[open:end])
		f.buf = f.buf[end:]
		// Loop again: a single delta may close one fence and open another.
	}
}

func trailingBackticks(s string) int {
	n := 0
	for n < len(s) && n < len(marker)-1 && s[len(s)-1-n] == '`' {
		n++
	}
	return n
}

// Flush returns whatever remains buffered at end-of-stream, verbatim. An
// unterminated fence is the model's own malformed output and is surfaced
// as-is rather than dropped.
func (f *Filter) Flush() string {
	s := f.buf
	f.buf = ""
	return s
}
