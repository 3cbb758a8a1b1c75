package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickloop/lockstep"
)

func TestBinaryCodecRoundTripsInputs(t *testing.T) {
	codec := BinaryCodec{}
	inputs := []lockstep.FrameInput{
		{Frame: 0, Command: lockstep.Command("hello")},
		{Frame: 1, Command: lockstep.Command("")},
		{Frame: 2, Command: lockstep.Command("world!")},
	}

	payload, err := codec.EncodeInputs(7, inputs)
	require.NoError(t, err)

	msg, err := codec.Decode(payload)
	require.NoError(t, err)
	require.Equal(t, lockstep.MessageInputs, msg.Kind)
	require.NotNil(t, msg.Inputs)
	assert.Equal(t, lockstep.HostID(7), msg.Inputs.SenderID)
	assert.Equal(t, inputs, msg.Inputs.Inputs)
}

func TestBinaryCodecRoundTripsAcks(t *testing.T) {
	codec := BinaryCodec{}
	acks := []lockstep.FrameAck{
		{Cumulative: -1, Selective: nil},
		{Cumulative: 5, Selective: []lockstep.FrameNumber{7, 9}},
	}

	payload, err := codec.EncodeAcks(3, acks)
	require.NoError(t, err)

	msg, err := codec.Decode(payload)
	require.NoError(t, err)
	require.Equal(t, lockstep.MessageAcks, msg.Kind)
	require.NotNil(t, msg.Acks)
	assert.Equal(t, lockstep.HostID(3), msg.Acks.SenderID)
	assert.Equal(t, acks, msg.Acks.Acks)
}

func TestBinaryCodecRejectsTruncatedPayload(t *testing.T) {
	codec := BinaryCodec{}
	_, err := codec.Decode([]byte{byte(lockstep.MessageInputs)})
	assert.Error(t, err)
}

// TestBinaryCodecRejectsMidFieldTruncation exercises a payload that is cut
// off partway through a multi-byte field (here, 2 of the sender ID's 4
// bytes) rather than at a field boundary. bytes.Reader.Read happily returns
// a short, non-error read in that case; only io.ReadFull turns it into an
// error, so this must fail rather than decode a zero-padded sender ID.
func TestBinaryCodecRejectsMidFieldTruncation(t *testing.T) {
	codec := BinaryCodec{}
	payload, err := codec.EncodeInputs(7, []lockstep.FrameInput{{Frame: 0, Command: lockstep.Command("x")}})
	require.NoError(t, err)

	// kind byte (1) + 2 of the 4 sender-ID bytes.
	truncated := payload[:3]
	_, err = codec.Decode(truncated)
	assert.Error(t, err)
}

func TestBinaryCodecRejectsUnknownKind(t *testing.T) {
	codec := BinaryCodec{}
	payload, err := codec.EncodeInputs(1, nil)
	require.NoError(t, err)
	payload[0] = 0xFF
	_, err = codec.Decode(payload)
	assert.Error(t, err)
}
