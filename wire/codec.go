package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tickloop/lockstep"
)

// BinaryCodec is a minimal length-prefixed big-endian framing: a one-byte
// kind tag, a four-byte sender ID, a four-byte record count, then the
// records: an input is an eight-byte frame number plus a four-byte length and
// that many command bytes; an ack is an eight-byte cumulative frame plus a
// four-byte count and that many eight-byte selective frames. It implements lockstep.Codec so this module's own
// Receiver/Transmitter can round-trip against each other without a real
// socket; an embedding application is free to supply its own lockstep.Codec
// instead — the wire format is an external concern (§4.7), this is one
// concrete reference implementation of it.
type BinaryCodec struct{}

var _ lockstep.Codec = BinaryCodec{}

func (BinaryCodec) EncodeInputs(sender lockstep.HostID, inputs []lockstep.FrameInput) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(lockstep.MessageInputs))
	writeUint32(&buf, uint32(sender))
	writeUint32(&buf, uint32(len(inputs)))
	for _, in := range inputs {
		writeInt64(&buf, int64(in.Frame))
		writeUint32(&buf, uint32(len(in.Command)))
		buf.Write(in.Command)
	}
	return buf.Bytes(), nil
}

func (BinaryCodec) EncodeAcks(sender lockstep.HostID, acks []lockstep.FrameAck) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(lockstep.MessageAcks))
	writeUint32(&buf, uint32(sender))
	writeUint32(&buf, uint32(len(acks)))
	for _, ack := range acks {
		writeInt64(&buf, int64(ack.Cumulative))
		writeUint32(&buf, uint32(len(ack.Selective)))
		for _, n := range ack.Selective {
			writeInt64(&buf, int64(n))
		}
	}
	return buf.Bytes(), nil
}

func (BinaryCodec) Decode(payload []byte) (lockstep.Message, error) {
	r := bytes.NewReader(payload)
	kindByte, err := r.ReadByte()
	if err != nil {
		return lockstep.Message{}, fmt.Errorf("wire: truncated kind: %w", err)
	}
	kind := lockstep.MessageKind(kindByte)

	sender, err := readUint32(r)
	if err != nil {
		return lockstep.Message{}, fmt.Errorf("wire: truncated sender: %w", err)
	}
	count, err := readUint32(r)
	if err != nil {
		return lockstep.Message{}, fmt.Errorf("wire: truncated count: %w", err)
	}

	switch kind {
	case lockstep.MessageInputs:
		inputs := make([]lockstep.FrameInput, 0, count)
		for i := uint32(0); i < count; i++ {
			frame, err := readInt64(r)
			if err != nil {
				return lockstep.Message{}, fmt.Errorf("wire: truncated frame: %w", err)
			}
			cmdLen, err := readUint32(r)
			if err != nil {
				return lockstep.Message{}, fmt.Errorf("wire: truncated command length: %w", err)
			}
			cmd := make([]byte, cmdLen)
			if cmdLen > 0 {
				if _, err := io.ReadFull(r, cmd); err != nil {
					return lockstep.Message{}, fmt.Errorf("wire: truncated command: %w", err)
				}
			}
			inputs = append(inputs, lockstep.FrameInput{Frame: lockstep.FrameNumber(frame), Command: cmd})
		}
		return lockstep.Message{
			Kind:   lockstep.MessageInputs,
			Inputs: &lockstep.FrameInputBatch{SenderID: lockstep.HostID(sender), Inputs: inputs},
		}, nil
	case lockstep.MessageAcks:
		acks := make([]lockstep.FrameAck, 0, count)
		for i := uint32(0); i < count; i++ {
			cumulative, err := readInt64(r)
			if err != nil {
				return lockstep.Message{}, fmt.Errorf("wire: truncated cumulative ack: %w", err)
			}
			selCount, err := readUint32(r)
			if err != nil {
				return lockstep.Message{}, fmt.Errorf("wire: truncated selective count: %w", err)
			}
			var selective []lockstep.FrameNumber
			if selCount > 0 {
				selective = make([]lockstep.FrameNumber, 0, selCount)
				for j := uint32(0); j < selCount; j++ {
					n, err := readInt64(r)
					if err != nil {
						return lockstep.Message{}, fmt.Errorf("wire: truncated selective ack: %w", err)
					}
					selective = append(selective, lockstep.FrameNumber(n))
				}
			}
			acks = append(acks, lockstep.FrameAck{Cumulative: lockstep.FrameNumber(cumulative), Selective: selective})
		}
		return lockstep.Message{
			Kind: lockstep.MessageAcks,
			Acks: &lockstep.AckBatch{SenderID: lockstep.HostID(sender), Acks: acks},
		}, nil
	default:
		return lockstep.Message{}, fmt.Errorf("wire: unknown message kind %d", kindByte)
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(tmp[:])), nil
}
