package protocol

import (
	"bytes"
	"errors"
)

// ErrBufferOverflow is returned by Feed when an unterminated frame grew past
// the decoder's buffer cap. The unterminated bytes are dropped and the decoder
// keeps working.
var ErrBufferOverflow = errors.New("protocol: unterminated frame exceeded buffer cap")

// Decoder reassembles payloads from an arbitrarily chunked byte stream.
// It is goroutine-local (owned by one read loop) and needs no locking.
type Decoder struct {
	variant   Variant
	term      []byte
	maxBuffer int

	buf       []byte
	overflows uint64
}

// NewDecoder creates a decoder for the given variant. maxBuffer <= 0 selects
// DefaultMaxBuffer.
func NewDecoder(v Variant, maxBuffer int) *Decoder {
	if v != VariantA {
		v = VariantB
	}
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	return &Decoder{
		variant:   v,
		term:      v.terminator(),
		maxBuffer: maxBuffer,
	}
}

// Feed appends chunk to the pending buffer and returns every payload that is
// now complete, in receipt order. Returns nil if no frame completed.
//
// After Feed returns, the buffer holds no complete frame: it is either empty
// or starts with the 'S' of a frame still waiting for its terminator.
func (d *Decoder) Feed(chunk []byte) ([]string, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	d.buf = append(d.buf, chunk...)

	var payloads []string
	consumed := 0
	for {
		rest := d.buf[consumed:]

		start := bytes.IndexByte(rest, StartByte)
		if start < 0 {
			// Nothing here can ever start a frame.
			consumed = len(d.buf)
			break
		}

		// Terminators before the start marker are skipped by searching after it.
		end := bytes.Index(rest[start+1:], d.term)
		if end < 0 {
			consumed += start
			break
		}
		end += start + 1

		payloads = append(payloads, string(rest[start+1:end]))
		consumed += end + len(d.term)
	}

	d.buf = append(d.buf[:0], d.buf[consumed:]...)

	if len(d.buf) > d.maxBuffer {
		d.buf = d.buf[:0]
		d.overflows++
		return payloads, ErrBufferOverflow
	}
	return payloads, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Overflows returns how many times the buffer cap was exceeded.
func (d *Decoder) Overflows() uint64 { return d.overflows }

// Variant returns the end-of-frame contract this decoder applies.
func (d *Decoder) Variant() Variant { return d.variant }

// Reset discards any buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
