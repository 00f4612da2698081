// Package protocol defines the device wire format: payloads framed between a
// start marker 'S' and an end marker 'E' (optionally followed by '\n').
package protocol

import "fmt"

// Frame delimiters.
const (
	StartByte = 'S'
	EndByte   = 'E'
	Newline   = '\n'
)

// DefaultMaxBuffer caps the bytes a Decoder holds while waiting for a frame
// terminator.
const DefaultMaxBuffer = 64 * 1024

// Variant selects the end-of-frame contract.
type Variant uint8

const (
	// VariantA frames are S<payload>E.
	VariantA Variant = iota + 1
	// VariantB frames are S<payload>E\n. The frame is incomplete until the
	// newline arrives.
	VariantB
)

func (v Variant) String() string {
	switch v {
	case VariantA:
		return "A"
	case VariantB:
		return "B"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// terminator returns the byte sequence that closes a frame.
func (v Variant) terminator() []byte {
	if v == VariantA {
		return []byte{EndByte}
	}
	return []byte{EndByte, Newline}
}

// ParseVariant accepts "a"/"b" in either case.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "A", "a":
		return VariantA, nil
	case "B", "b":
		return VariantB, nil
	default:
		return 0, fmt.Errorf("unknown frame variant %q (want A or B)", s)
	}
}

// EncodeFrame wraps payload in the delimiters of the given variant.
func EncodeFrame(v Variant, payload string) []byte {
	term := v.terminator()
	buf := make([]byte, 0, 1+len(payload)+len(term))
	buf = append(buf, StartByte)
	buf = append(buf, payload...)
	return append(buf, term...)
}

// EncodeLine returns text terminated by a newline, the outbound message form.
// No S/E wrapping is applied.
func EncodeLine(text string) []byte {
	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	return append(buf, Newline)
}
