package answer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectSink(out *strings.Builder) Sink {
	return func(delta string) error {
		out.WriteString(delta)
		return nil
	}
}

func TestComposer_TrimsEmphasisMarkers(t *testing.T) {
	var out strings.Builder
	c := NewComposer(collectSink(&out), "")

	require.NoError(t, c.Write("**Bold heading**\nplain text\n"))
	require.NoError(t, c.Flush())

	assert.Equal(t, "Bold heading\nplain text", out.String())
}

func TestComposer_KeepsMidLineEmphasis(t *testing.T) {
	var out strings.Builder
	c := NewComposer(collectSink(&out), "")

	require.NoError(t, c.Write("this **word** stays\n"))
	require.NoError(t, c.Flush())

	assert.Equal(t, "this **word** stays", out.String())
}

func TestComposer_CollapsesBlankRuns(t *testing.T) {
	var out strings.Builder
	c := NewComposer(collectSink(&out), "")

	require.NoError(t, c.Write("first paragraph\n\n\n\nsecond paragraph"))
	require.NoError(t, c.Flush())

	assert.Equal(t, "first paragraph\n\nsecond paragraph", out.String())
}

func TestComposer_SplitDeltas(t *testing.T) {
	var out strings.Builder
	c := NewComposer(collectSink(&out), "")

	for _, delta := range []string{"Hel", "lo\nwor", "ld"} {
		require.NoError(t, c.Write(delta))
	}
	require.NoError(t, c.Flush())

	assert.Equal(t, "Hello\nworld", out.String())
}

func TestComposer_CustomLineBreak(t *testing.T) {
	var out strings.Builder
	c := NewComposer(collectSink(&out), "<br>")

	require.NoError(t, c.Write("a\n\nb\nc"))
	require.NoError(t, c.Flush())

	assert.Equal(t, "a<br><br>b<br>c", out.String())
}

func TestComposer_StarOnlyLinesBecomeBlank(t *testing.T) {
	var out strings.Builder
	c := NewComposer(collectSink(&out), "")

	require.NoError(t, c.Write("above\n***\nbelow\n"))
	require.NoError(t, c.Flush())

	// The separator line vanishes; its boundaries merge into one
	// paragraph break.
	assert.Equal(t, "above\n\nbelow", out.String())
}

func TestComposer_Footer(t *testing.T) {
	var out strings.Builder
	c := NewComposer(collectSink(&out), "")

	require.NoError(t, c.Write("the answer"))
	require.NoError(t, c.Flush())
	require.NoError(t, c.WriteFooter(83, `report.txt ("some snippet")`))

	assert.Equal(t, "the answer\n\n— Confidence: 83% · Source: report.txt (\"some snippet\")", out.String())
}

func TestComposer_FooterWithoutCitation(t *testing.T) {
	var out strings.Builder
	c := NewComposer(collectSink(&out), "")

	require.NoError(t, c.Write("gated"))
	require.NoError(t, c.Flush())
	require.NoError(t, c.WriteFooter(12, ""))

	assert.Equal(t, "gated\n\n— Confidence: 12%", out.String())
}

func TestComposer_SinkErrorPropagates(t *testing.T) {
	sinkErr := errors.New("client went away")
	c := NewComposer(func(string) error { return sinkErr }, "")

	err := c.Write("text\n")
	assert.ErrorIs(t, err, sinkErr)
}
