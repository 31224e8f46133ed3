package fence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// run feeds chunks through a fresh filter and returns all emitted units
// plus the final flush (when non-empty).
func run(chunks ...string) []string {
	f := New()
	var units []string
	for _, c := range chunks {
		units = append(units, f.Push(c)...)
	}
	if tail := f.Flush(); tail != "" {
		units = append(units, tail)
	}
	return units
}

func TestFilter_PlainTextPassesThrough(t *testing.T) {
	units := run("hello ", "world")
	assert.Equal(t, []string{"hello ", "world"}, units)
}

func TestFilter_MarkerSplitAcrossChunks(t *testing.T) {
	// The example from the streaming contract: a fence whose markers arrive
	// in different chunks must come out as prefix, whole fence, suffix.
	units := run("abc```py", "code```def")
	assert.Equal(t, []string{"abc", "```pycode```", "def"}, units)
}

func TestFilter_CompleteFenceInOneChunk(t *testing.T) {
	units := run("before ```python\nprint(1)\n``` after")
	assert.Equal(t, []string{"before ", "```python\nprint(1)\n```", " after"}, units)
}

func TestFilter_PrefixFlushedBeforeUnterminatedFence(t *testing.T) {
	f := New()
	units := f.Push("Here is code:\n```python\ndef f():")
	// The prose prefix is released immediately; the open fence waits.
	assert.Equal(t, []string{"Here is code:\n"}, units)

	units = f.Push("\n    pass\n```\ndone")
	assert.Equal(t, []string{"```python\ndef f():\n    pass\n```", "\ndone"}, units)
}

func TestFilter_TwoFencesInOneDelta(t *testing.T) {
	units := run("```a```middle```b```")
	assert.Equal(t, []string{"```a```", "middle", "```b```"}, units)
}

func TestFilter_SecondFenceWithheldUntilItsOwnClose(t *testing.T) {
	f := New()
	units := f.Push("```one``` text ```two")
	assert.Equal(t, []string{"```one```", " text "}, units)

	units = f.Push(" more```")
	assert.Equal(t, []string{"```two more```"}, units)
}

func TestFilter_UnterminatedFenceFlushedAtEndOfStream(t *testing.T) {
	f := New()
	units := f.Push("text ```python\nbroken")
	assert.Equal(t, []string{"text "}, units)

	// End-of-stream surfaces the malformed remainder verbatim.
	assert.Equal(t, "```python\nbroken", f.Flush())
	assert.Equal(t, "", f.Flush())
}

func TestFilter_MarkerItselfSplitBetweenChunks(t *testing.T) {
	units := run("text `", "``go\nx``", "`tail")
	assert.Equal(t, []string{"text ", "```go\nx```", "tail"}, units)
}

func TestFilter_ContentPreservation(t *testing.T) {
	// Chunk-boundary invariance: however the input is split, the
	// concatenated output reproduces it exactly.
	inputs := []string{
		"no fences at all, just prose",
		"one ```python\ncode\n``` fence",
		"```a``````b```",
		"unbalanced ``` tail",
		"``````",
		"ends with partial ``",
		"```only-a-fence```",
		"text``mid``text```py\na=1\n```x",
	}

	for _, s := range inputs {
		for size := 1; size <= 7; size++ {
			var chunks []string
			for i := 0; i < len(s); i += size {
				end := i + size
				if end > len(s) {
					end = len(s)
				}
				chunks = append(chunks, s[i:end])
			}
			got := strings.Join(run(chunks...), "")
			assert.Equalf(t, s, got, "input %q split at size %d", s, size)
		}
	}
}

func TestFilter_EmittedFencesAreBalanced(t *testing.T) {
	// For well-formed input, no emitted unit carries an odd number of
	// markers: fences arrive whole or not at all.
	input := "intro ```py\na\n``` mid ```js\nb\n``` outro"
	for size := 1; size <= 5; size++ {
		var chunks []string
		for i := 0; i < len(input); i += size {
			end := i + size
			if end > len(input) {
				end = len(input)
			}
			chunks = append(chunks, input[i:end])
		}
		for _, unit := range run(chunks...) {
			assert.Equalf(t, 0, strings.Count(unit, "```")%2,
				"unit %q has unbalanced markers (chunk size %d)", unit, size)
		}
	}
}

func TestFilter_EmptyPush(t *testing.T) {
	f := New()
	assert.Empty(t, f.Push(""))
	assert.Equal(t, "", f.Flush())
}
