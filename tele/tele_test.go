package tele

import (
	"testing"

	proto "github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryWire(t *testing.T) {
	t.Parallel()

	tm := &Telemetry{
		DeviceId: 7,
		State:    int32(State_Failed),
		Error:    &Telemetry_Error{Message: "send: broken pipe", Code: 32},
		Session:  &Telemetry_Session{Id: "s1", Address: "10.0.0.5:4321", Sends: 2, Bytes: 76},
	}
	b, err := proto.Marshal(tm)
	require.NoError(t, err)
	var decoded Telemetry
	require.NoError(t, proto.Unmarshal(b, &decoded))
	assert.Equal(t, int32(7), decoded.DeviceId)
	assert.Equal(t, State_Failed, State(decoded.State))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "send: broken pipe", decoded.Error.Message)
	require.NotNil(t, decoded.Session)
	assert.Equal(t, uint64(76), decoded.Session.Bytes)
	assert.Nil(t, decoded.Link)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Streaming", State_Streaming.String())
	assert.Equal(t, "State(99)", State(99).String())
}

func TestTopics(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "dev12/w/1s", TopicState(12))
	assert.Equal(t, "dev12/w/1t", TopicTelemetry(12))
}
