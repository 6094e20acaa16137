package trc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTripsThroughSink(t *testing.T) {
	var buf bytes.Buffer
	Sink(&buf)

	ev := Event("unit-test", 3)
	ev.Done()

	assert.True(t, strings.HasPrefix(buf.String(), "["))

	body := strings.TrimSuffix(strings.TrimPrefix(buf.String(), "["), ",")
	var decoded PendingEvent
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "unit-test", decoded.Name)
	assert.Equal(t, "X", decoded.Type)
	assert.Equal(t, uint64(3), decoded.Tid)
}

func TestJobEventCarriesJobIdentity(t *testing.T) {
	var buf bytes.Buffer
	Sink(&buf)

	ev := JobEvent("local", 2, "uuid-1", "a", "1")
	ev.Done()

	body := strings.TrimSuffix(strings.TrimPrefix(buf.String(), "["), ",")
	var decoded PendingEvent
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, uint64(2), decoded.Pid)
	assert.Equal(t, "job", decoded.Categories)

	args, ok := decoded.Args.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "uuid-1", args["job_uuid"])
	assert.Equal(t, "a", args["package"])
}
