package logstream

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	it := Parse([]byte("#BUTIDO:PROGRESS:42"))
	assert.Equal(t, KindProgress, it.Kind)
	assert.Equal(t, uint64(42), it.Progress)
}

func TestParseMalformedProgressDegradesToLine(t *testing.T) {
	it := Parse([]byte("#BUTIDO:PROGRESS:not-a-number"))
	assert.Equal(t, KindLine, it.Kind)
}

func TestParsePhase(t *testing.T) {
	it := Parse([]byte("#BUTIDO:PHASE:build"))
	assert.Equal(t, KindCurrentPhase, it.Kind)
	assert.Equal(t, "build", it.PhaseName)
}

func TestParseStateOK(t *testing.T) {
	it := Parse([]byte("#BUTIDO:STATE:OK"))
	assert.Equal(t, KindState, it.Kind)
	assert.Equal(t, StateOK, it.State)
}

func TestParseStateErr(t *testing.T) {
	it := Parse([]byte(`#BUTIDO:STATE:ERR:"something broke"`))
	assert.Equal(t, KindState, it.Kind)
	assert.Equal(t, StateErr, it.State)
	assert.Equal(t, "something broke", it.StateMessage)
}

func TestParseVerbatimLine(t *testing.T) {
	it := Parse([]byte("ordinary stdout output"))
	assert.Equal(t, KindLine, it.Kind)
	assert.Equal(t, "ordinary stdout output", string(it.Line))
}

func TestRoundTripAllVariants(t *testing.T) {
	items := []Item{
		LineItem([]byte("plain output")),
		ProgressItem(7),
		PhaseItem("build"),
		PhaseItem("with space"),
		StateItem(StateOK, ""),
		StateItem(StateErr, "escape \"this\"\nand this"),
	}
	for _, it := range items {
		serialized := Serialize(it)
		got := Parse(serialized)
		assert.Equal(t, it.Kind, got.Kind, string(serialized))
		switch it.Kind {
		case KindLine:
			assert.Equal(t, string(it.Line), string(got.Line))
		case KindProgress:
			assert.Equal(t, it.Progress, got.Progress)
		case KindCurrentPhase:
			assert.Equal(t, it.PhaseName, got.PhaseName)
		case KindState:
			assert.Equal(t, it.State, got.State)
			assert.Equal(t, it.StateMessage, got.StateMessage)
		}
	}
}

func TestIsSuccessfulNoneWhenNoState(t *testing.T) {
	items := []Item{LineItem([]byte("a")), ProgressItem(1)}
	assert.Nil(t, IsSuccessful(items))
}

func TestIsSuccessfulTrueOnOK(t *testing.T) {
	items := []Item{LineItem([]byte("a")), StateItem(StateOK, "")}
	got := IsSuccessful(items)
	require.NotNil(t, got)
	assert.True(t, *got)
}

func TestIsSuccessfulFalseOnErr(t *testing.T) {
	items := []Item{StateItem(StateOK, ""), StateItem(StateErr, "boom")}
	got := IsSuccessful(items)
	require.NotNil(t, got)
	assert.False(t, *got)
}

func TestFileSinkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sink := NewFileSink(&buf)
	require.NoError(t, sink.Push(LineItem([]byte("hello"))))
	require.NoError(t, sink.Push(ProgressItem(3)))
	require.NoError(t, sink.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0])
	assert.Equal(t, "#BUTIDO:PROGRESS:3", lines[1])
}

func TestDBSinkAccumulates(t *testing.T) {
	sink := NewDBSink()
	require.NoError(t, sink.Push(LineItem([]byte("a"))))
	require.NoError(t, sink.Push(StateItem(StateOK, "")))
	assert.Equal(t, "a\n#BUTIDO:STATE:OK\n", sink.Text())
}

func TestParseLinesPushesInOrder(t *testing.T) {
	r := strings.NewReader("one\n#BUTIDO:PROGRESS:1\ntwo\n")
	sink := NewDBSink()
	require.NoError(t, ParseLines(r, sink))
	assert.Equal(t, "one\n#BUTIDO:PROGRESS:1\ntwo\n", sink.Text())
}
