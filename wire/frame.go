// Package wire implements the word-oriented frame format spoken across the
// link cable.
//
// Every frame is a sequence of 32-bit words: a fixed magic word, a header
// word packing the frame type, sequence number and payload length, a
// checksum word, and the payload packed little-endian four bytes per word
// with zero padding in the final word. The encoder produces exactly this
// layout and the incremental Parser reconstructs frames from the raw word
// stream, resynchronizing on the magic word after corruption.
package wire

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// FrameMagic marks the first word of every frame ("EMFQ" little-endian).
const FrameMagic uint32 = 0x51464D45

const (
	// HeaderWords is the number of words before the payload: magic,
	// header and checksum.
	HeaderWords = 3

	// MaxPayload is the largest payload one frame may carry, in bytes.
	MaxPayload = 8000
)

// FrameType identifies the role of a frame on the link.
type FrameType uint8

const (
	// FrameHello is sent by the initiator to open a session
	FrameHello FrameType = iota + 1
	// FrameHelloAck accepts a session on behalf of the responder
	FrameHelloAck
	// FrameReliable carries application data that must be acknowledged
	FrameReliable
	// FrameReliableAck acknowledges a reliable frame by sequence number
	FrameReliableAck
	// FrameUnreliable carries application data with no delivery guarantee
	FrameUnreliable
	// FrameKeepalive proves liveness during idle periods
	FrameKeepalive
	// FrameReset tells the peer to tear the session down immediately
	FrameReset
)

// String returns a human-readable name for the frame type.
func (t FrameType) String() string {
	switch t {
	case FrameHello:
		return "hello"
	case FrameHelloAck:
		return "hello_ack"
	case FrameReliable:
		return "reliable"
	case FrameReliableAck:
		return "reliable_ack"
	case FrameUnreliable:
		return "unreliable"
	case FrameKeepalive:
		return "keepalive"
	case FrameReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Frame is one decoded link frame.
type Frame struct {
	Type    FrameType
	Seq     uint8
	Payload []byte
}

var (
	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayload.
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum frame size")

	// ErrChecksumMismatch is returned by Parser.Consume when a completed
	// frame fails checksum validation.
	ErrChecksumMismatch = errors.New("wire: frame checksum mismatch")

	// ErrLengthOverflow is returned by Parser.Consume when a header word
	// declares a payload longer than MaxPayload.
	ErrLengthOverflow = errors.New("wire: declared payload length exceeds maximum")
)

// PayloadWords returns the number of words needed to carry n payload bytes.
func PayloadWords(n int) int {
	return (n + 3) / 4
}

// FrameWords returns the total word count of a frame carrying n payload
// bytes, including the magic, header and checksum words.
func FrameWords(n int) int {
	return HeaderWords + PayloadWords(n)
}

// EncodeHeader packs the frame type, sequence number and payload length
// into the second word of a frame.
func EncodeHeader(typ FrameType, seq uint8, payloadLen int) uint32 {
	return uint32(typ)<<24 | uint32(seq)<<16 | uint32(payloadLen)&0xFFFF
}

// DecodeHeader unpacks a header word into its type, sequence number and
// declared payload length.
func DecodeHeader(word uint32) (typ FrameType, seq uint8, payloadLen int) {
	return FrameType(word >> 24), uint8(word >> 16), int(word & 0xFFFF)
}

// EncodePayloadWord packs up to four payload bytes starting at offset into
// one little-endian word. Bytes past the end of the payload are zero.
func EncodePayloadWord(payload []byte, offset int) uint32 {
	var w uint32
	for k := 0; k < 4 && offset+k < len(payload); k++ {
		w |= uint32(payload[offset+k]) << (8 * k)
	}
	return w
}

// DecodePayloadWord unpacks one little-endian payload word into dst
// starting at offset. Bytes at or past declaredLen are framing padding and
// are discarded.
func DecodePayloadWord(dst []byte, word uint32, offset, declaredLen int) {
	for k := 0; k < 4; k++ {
		if offset+k >= declaredLen {
			return
		}
		dst[offset+k] = byte(word >> (8 * k))
	}
}

// EncodeFrame serializes a complete frame into its word sequence. The
// checksum is computed over the header fields and the unpadded payload.
func EncodeFrame(typ FrameType, seq uint8, payload []byte) ([]uint32, error) {
	if len(payload) > MaxPayload {
		logrus.WithFields(logrus.Fields{
			"function":    "EncodeFrame",
			"frame_type":  typ.String(),
			"payload_len": len(payload),
			"max_payload": MaxPayload,
		}).Error("payload exceeds maximum frame size")
		return nil, ErrPayloadTooLarge
	}

	words := make([]uint32, 0, FrameWords(len(payload)))
	words = append(words, FrameMagic)
	words = append(words, EncodeHeader(typ, seq, len(payload)))
	words = append(words, uint32(Checksum(typ, seq, payload)))
	for offset := 0; offset < len(payload); offset += 4 {
		words = append(words, EncodePayloadWord(payload, offset))
	}
	return words, nil
}
