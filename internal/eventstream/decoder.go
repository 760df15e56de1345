package eventstream

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/example/kiro-claude-bridge/internal/metrics"
)

const (
	preludeLen = 8  // total_len(4) + headers_len(4)
	crcLen     = 4  // one CRC32, big-endian
	frameMin   = 16 // minEventStreamFrameSize: 4+4+4(prelude crc)+4(message crc)
	frameMax   = 16 << 20
)

// ErrFrameCorrupt is returned when a frame's prelude or message CRC does
// not match the bytes it covers.
var ErrFrameCorrupt = errors.New("eventstream: frame corrupt (crc mismatch)")

// ErrFrameTooLarge is returned when a frame's declared total length falls
// outside [frameMin, frameMax].
var ErrFrameTooLarge = errors.New("eventstream: frame too large or too small")

// Event is one decoded frame: its header block and opaque payload bytes.
type Event struct {
	Headers Headers
	Payload []byte
}

// EventType returns the value of the well-known ":event-type" header, or
// "" if absent.
func (e Event) EventType() string {
	if v, ok := e.Headers[":event-type"]; ok {
		return v.String()
	}
	return ""
}

// ContentType returns the value of the well-known ":content-type" header,
// or "" if absent.
func (e Event) ContentType() string {
	if v, ok := e.Headers[":content-type"]; ok {
		return v.String()
	}
	return ""
}

// Decoder incrementally splits an arbitrary byte stream into Event Stream
// frames. Feed accepts chunks of any size — including ones that split a
// frame's prelude, headers, or payload across calls — and returns any
// frames that became fully available as a result. The decoder is
// restartable across chunk boundaries: decoding the concatenation of all
// fed chunks in one call yields the same events as feeding them
// one-by-one, in any partitioning.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder ready to receive chunks via Feed.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the internal buffer and decodes as many complete
// frames as are now available. It returns the decoded events in order.
// A CRC or size violation aborts decoding of the offending frame and
// returns the events decoded so far alongside the error; the offending
// bytes remain in the internal buffer, so the caller must stop feeding
// this decoder once an error is returned (per §8, scenario 6).
func (d *Decoder) Feed(chunk []byte) ([]Event, error) {
	if len(chunk) > 0 {
		d.buf = append(d.buf, chunk...)
	}

	var events []Event
	for {
		ev, consumed, err := d.tryDecodeOne()
		if err != nil {
			return events, err
		}
		if consumed == 0 {
			return events, nil
		}
		d.buf = d.buf[consumed:]
		if ev != nil {
			events = append(events, *ev)
		}
	}
}

// tryDecodeOne attempts to decode a single frame from the head of the
// buffer. It returns (nil, 0, nil) when more bytes are needed.
func (d *Decoder) tryDecodeOne() (*Event, int, error) {
	if len(d.buf) < preludeLen+crcLen {
		return nil, 0, nil
	}

	totalLen := binary.BigEndian.Uint32(d.buf[0:4])
	headersLen := binary.BigEndian.Uint32(d.buf[4:8])

	if totalLen < frameMin || totalLen > frameMax {
		return nil, 0, ErrFrameTooLarge
	}
	if int(totalLen) < preludeLen+crcLen+crcLen {
		return nil, 0, ErrFrameTooLarge
	}
	if uint64(headersLen) > uint64(totalLen)-(preludeLen+2*crcLen) {
		return nil, 0, fmt.Errorf("%w: headers length %d exceeds frame bounds", ErrFrameCorrupt, headersLen)
	}

	if len(d.buf) < int(totalLen) {
		return nil, 0, nil
	}

	frame := d.buf[:totalLen]

	preludeCRC := binary.BigEndian.Uint32(frame[8:12])
	if checksum(frame[:preludeLen]) != preludeCRC {
		metrics.DecoderCRCFailuresTotal.Inc()
		return nil, 0, ErrFrameCorrupt
	}

	messageCRC := binary.BigEndian.Uint32(frame[totalLen-4:])
	if checksum(frame[:totalLen-4]) != messageCRC {
		metrics.DecoderCRCFailuresTotal.Inc()
		return nil, 0, ErrFrameCorrupt
	}

	headersStart := preludeLen + crcLen
	headersEnd := headersStart + int(headersLen)
	payloadEnd := int(totalLen) - crcLen

	headers, err := decodeHeaders(frame[headersStart:headersEnd])
	if err != nil {
		return nil, 0, err
	}

	var payload []byte
	if headersEnd < payloadEnd {
		payload = make([]byte, payloadEnd-headersEnd)
		copy(payload, frame[headersEnd:payloadEnd])
	}

	metrics.DecoderFramesTotal.Inc()
	return &Event{Headers: headers, Payload: payload}, int(totalLen), nil
}
