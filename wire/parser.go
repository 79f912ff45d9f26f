package wire

import (
	"github.com/sirupsen/logrus"
)

// parserState tracks which part of a frame the parser expects next.
type parserState uint8

const (
	stateWaitMagic parserState = iota
	stateWaitHeader
	stateWaitCRC
	stateWaitPayload
)

// ParserStats holds cumulative receive-side diagnostic counters.
type ParserStats struct {
	// WordsConsumed counts every word fed to Consume.
	WordsConsumed uint64
	// FramesAccepted counts frames that passed checksum validation.
	FramesAccepted uint64
	// ChecksumFailures counts completed frames rejected by checksum.
	ChecksumFailures uint64
	// HeaderRejects counts header words declaring an oversize payload.
	HeaderRejects uint64
}

// Parser reconstructs frames from the raw transport word stream, one word
// at a time. It tolerates arbitrary noise between frames: garbage words are
// discarded until the magic word appears, and any malformed or corrupt
// frame re-arms the parser so the stream recovers at the next frame
// boundary.
type Parser struct {
	state       parserState
	typ         FrameType
	seq         uint8
	declaredLen int
	wantCRC     uint16
	wordsNeeded int
	wordsSeen   int
	payload     []byte

	stats ParserStats
}

// NewParser returns a parser armed for the start of a frame.
func NewParser() *Parser {
	return &Parser{
		payload: make([]byte, MaxPayload),
	}
}

// Reset discards any partially received frame and re-arms the parser for
// the next magic word. The payload buffer is retained.
func (p *Parser) Reset() {
	p.state = stateWaitMagic
	p.typ = 0
	p.seq = 0
	p.declaredLen = 0
	p.wantCRC = 0
	p.wordsNeeded = 0
	p.wordsSeen = 0
}

// Stats returns a snapshot of the parser's diagnostic counters.
func (p *Parser) Stats() ParserStats {
	return p.stats
}

// Consume feeds one transport word to the parser. It returns a non-nil
// frame when the word completes one, and nil while a frame is still in
// progress. A frame that fails validation returns ErrChecksumMismatch or
// ErrLengthOverflow after the parser has already re-armed itself; the
// stream remains usable.
//
// The returned frame's payload aliases an internal buffer that is reused
// by the next accepted frame. Callers that retain the payload must copy it.
func (p *Parser) Consume(word uint32) (*Frame, error) {
	p.stats.WordsConsumed++

	switch p.state {
	case stateWaitMagic:
		if word == FrameMagic {
			p.state = stateWaitHeader
		}
		return nil, nil

	case stateWaitHeader:
		p.typ, p.seq, p.declaredLen = DecodeHeader(word)
		if p.declaredLen > MaxPayload {
			p.stats.HeaderRejects++
			p.Reset()
			return nil, ErrLengthOverflow
		}
		p.wordsNeeded = PayloadWords(p.declaredLen)
		p.wordsSeen = 0
		p.state = stateWaitCRC
		return nil, nil

	case stateWaitCRC:
		p.wantCRC = uint16(word & 0xFFFF)
		if p.wordsNeeded == 0 {
			return p.finish()
		}
		p.state = stateWaitPayload
		return nil, nil

	case stateWaitPayload:
		DecodePayloadWord(p.payload, word, p.wordsSeen*4, p.declaredLen)
		p.wordsSeen++
		if p.wordsSeen < p.wordsNeeded {
			return nil, nil
		}
		return p.finish()

	default:
		p.Reset()
		return nil, nil
	}
}

// finish validates the completed frame and re-arms the parser.
func (p *Parser) finish() (*Frame, error) {
	got := Checksum(p.typ, p.seq, p.payload[:p.declaredLen])
	if got != p.wantCRC {
		p.stats.ChecksumFailures++
		logrus.WithFields(logrus.Fields{
			"function":    "Consume",
			"frame_type":  p.typ.String(),
			"payload_len": p.declaredLen,
			"received":    p.wantCRC,
			"computed":    got,
		}).Debug("frame checksum mismatch")
		p.Reset()
		return nil, ErrChecksumMismatch
	}

	frame := &Frame{
		Type:    p.typ,
		Seq:     p.seq,
		Payload: p.payload[:p.declaredLen],
	}
	p.stats.FramesAccepted++
	p.Reset()
	return frame, nil
}
