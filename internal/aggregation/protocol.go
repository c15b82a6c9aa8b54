package aggregation

import (
	"encoding/binary"
	"fmt"

	"SanFermin/internal/bitmap"
)

// Message types of the aggregation protocol.
const (
	msgTypeBatch = 0x01 // Contribution batch
	msgTypeState = 0x02 // Peer state announcement
)

// Batch flags.
const (
	flagReply = 0x01 // Batch answers a peer and must not be answered
)

// Header sizes.
const (
	batchHeaderSize = 15 // [1B type] [1B flags] [4B sender] [4B width] [1B encoding] [4B units]
	stateHeaderSize = 9  // [1B type] [4B sender] [4B width]
)

// Batch is a set of verified contributions sent to a peer.
type Batch struct {
	Sender   int           // Sender is the sending member
	Reply    bool          // Reply marks an answer to an incoming batch
	Encoding Encoding      // Encoding is the representation chosen by the estimator
	Units    uint32        // Units is the encoding cost
	Bitmap   bitmap.Bitmap // Bitmap is the contribution set
}

// PeerState announces the verified set of its sender.
type PeerState struct {
	Sender int           // Sender is the announcing member
	Bitmap bitmap.Bitmap // Bitmap is the sender's verified set
}

// EncodeBatch encodes a contribution batch.
// Format: [1B type] [1B flags] [4B sender] [4B width] [1B encoding] [4B units] [bitmap]
func EncodeBatch(b *Batch) []byte {
	bits := b.Bitmap.Bytes()
	buf := make([]byte, batchHeaderSize+len(bits))

	buf[0] = msgTypeBatch
	if b.Reply {
		buf[1] = flagReply
	}

	binary.BigEndian.PutUint32(buf[2:6], uint32(b.Sender))
	binary.BigEndian.PutUint32(buf[6:10], uint32(b.Bitmap.Width()))
	buf[10] = byte(b.Encoding)
	binary.BigEndian.PutUint32(buf[11:15], b.Units)
	copy(buf[batchHeaderSize:], bits)

	return buf
}

// DecodeBatch decodes a contribution batch for a committee of the given width.
func DecodeBatch(data []byte, width int) (*Batch, error) {
	if len(data) < batchHeaderSize {
		return nil, fmt.Errorf("batch too short: %d < %d", len(data), batchHeaderSize)
	}

	if data[0] != msgTypeBatch {
		return nil, fmt.Errorf("invalid message type: 0x%02x", data[0])
	}

	bm, err := decodeBitmap(data[6:10], data[batchHeaderSize:], width)
	if err != nil {
		return nil, err
	}

	enc := Encoding(data[10])
	if enc != EncodingLiteral && enc != EncodingRange {
		return nil, fmt.Errorf("invalid encoding: 0x%02x", data[10])
	}

	return &Batch{
		Sender:   int(binary.BigEndian.Uint32(data[2:6])),
		Reply:    data[1]&flagReply != 0,
		Encoding: enc,
		Units:    binary.BigEndian.Uint32(data[11:15]),
		Bitmap:   bm,
	}, nil
}

// EncodePeerState encodes a state announcement.
// Format: [1B type] [4B sender] [4B width] [bitmap]
func EncodePeerState(s *PeerState) []byte {
	bits := s.Bitmap.Bytes()
	buf := make([]byte, stateHeaderSize+len(bits))

	buf[0] = msgTypeState
	binary.BigEndian.PutUint32(buf[1:5], uint32(s.Sender))
	binary.BigEndian.PutUint32(buf[5:9], uint32(s.Bitmap.Width()))
	copy(buf[stateHeaderSize:], bits)

	return buf
}

// DecodePeerState decodes a state announcement for a committee of the given width.
func DecodePeerState(data []byte, width int) (*PeerState, error) {
	if len(data) < stateHeaderSize {
		return nil, fmt.Errorf("state too short: %d < %d", len(data), stateHeaderSize)
	}

	if data[0] != msgTypeState {
		return nil, fmt.Errorf("invalid message type: 0x%02x", data[0])
	}

	bm, err := decodeBitmap(data[5:9], data[stateHeaderSize:], width)
	if err != nil {
		return nil, err
	}

	return &PeerState{
		Sender: int(binary.BigEndian.Uint32(data[1:5])),
		Bitmap: bm,
	}, nil
}

// decodeBitmap checks the announced width against the committee width and reads the bits.
func decodeBitmap(widthField, bits []byte, width int) (bitmap.Bitmap, error) {
	announced := int(binary.BigEndian.Uint32(widthField))
	if announced != width {
		return bitmap.Bitmap{}, fmt.Errorf("%w: message width %d, committee %d", bitmap.ErrWidthMismatch, announced, width)
	}

	return bitmap.FromBytes(width, bits)
}

// messageType returns the type byte of an encoded message.
func messageType(data []byte) (byte, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty message")
	}

	return data[0], nil
}
