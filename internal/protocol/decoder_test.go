package protocol

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

// feedAll feeds every chunk in order and collects the payloads.
func feedAll(t *testing.T, d *Decoder, chunks ...string) []string {
	t.Helper()
	var out []string
	for _, c := range chunks {
		got, err := d.Feed([]byte(c))
		if err != nil {
			t.Fatalf("Feed(%q) failed: %v", c, err)
		}
		out = append(out, got...)
	}
	return out
}

// scanJoined extracts payloads from a complete stream in one pass, without
// the decoder. It is the reference for chunk-boundary independence.
func scanJoined(stream string, v Variant) []string {
	term := string(v.terminator())
	var out []string
	for {
		start := strings.IndexByte(stream, StartByte)
		if start < 0 {
			return out
		}
		end := strings.Index(stream[start+1:], term)
		if end < 0 {
			return out
		}
		end += start + 1
		out = append(out, stream[start+1:end])
		stream = stream[end+len(term):]
	}
}

func TestDecoderScenarios(t *testing.T) {
	testCases := []struct {
		name    string
		variant Variant
		chunks  []string
		want    []string
	}{
		{
			name:    "direction then caption",
			variant: VariantA,
			chunks:  []string{"S1EScaptionAE"},
			want:    []string{"1", "captionA"},
		},
		{
			name:    "left direction then caption",
			variant: VariantA,
			chunks:  []string{"S3EScaptionBE"},
			want:    []string{"3", "captionB"},
		},
		{
			name:    "frame split across chunks keeps whitespace",
			variant: VariantA,
			chunks:  []string{"S1", "EScapC E"},
			want:    []string{"1", "capC "},
		},
		{
			name:    "newline-terminated frames",
			variant: VariantB,
			chunks:  []string{"S2E\nShello world E\n"},
			want:    []string{"2", "hello world "},
		},
		{
			name:    "newline arrives in a later chunk",
			variant: VariantB,
			chunks:  []string{"SabcE", "\n"},
			want:    []string{"abc"},
		},
		{
			name:    "E without newline does not terminate",
			variant: VariantB,
			chunks:  []string{"SoneEtwoE\n"},
			want:    []string{"oneEtwo"},
		},
		{
			name:    "end marker before start marker is skipped",
			variant: VariantA,
			chunks:  []string{"xxESabcE"},
			want:    []string{"abc"},
		},
		{
			name:    "dangling end marker waits for a start",
			variant: VariantA,
			chunks:  []string{"E", "SxE"},
			want:    []string{"x"},
		},
		{
			name:    "empty payload",
			variant: VariantA,
			chunks:  []string{"SE"},
			want:    []string{""},
		},
		{
			name:    "byte at a time",
			variant: VariantB,
			chunks:  strings.Split("S4E\nSnear doorE\n", ""),
			want:    []string{"4", "near door"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecoder(tc.variant, 0)
			got := feedAll(t, d, tc.chunks...)
			if !slices.Equal(got, tc.want) {
				t.Errorf("payloads mismatch: got %q, want %q", got, tc.want)
			}
		})
	}
}

// TestDecoderChunkBoundaryIndependence verifies that every way of cutting a
// stream into two or three chunks yields the payloads of a single-pass scan.
func TestDecoderChunkBoundaryIndependence(t *testing.T) {
	streams := map[Variant]string{
		VariantA: "junkS1EScaptionAEstrayESmid textE SS2ES",
		VariantB: "S1E\nScap E no nl E\nE\nnoiseS3E\nSpartial",
	}

	for v, stream := range streams {
		want := scanJoined(stream, v)
		if len(want) == 0 {
			t.Fatalf("variant %s: reference scan found no payloads", v)
		}

		for i := 0; i <= len(stream); i++ {
			for j := i; j <= len(stream); j++ {
				d := NewDecoder(v, 0)
				got := feedAll(t, d, stream[:i], stream[i:j], stream[j:])
				if !slices.Equal(got, want) {
					t.Fatalf("variant %s split (%d,%d): got %q, want %q", v, i, j, got, want)
				}
			}
		}
	}
}

func TestDecoderEmptyChunkIsNoop(t *testing.T) {
	d := NewDecoder(VariantA, 0)
	if _, err := d.Feed([]byte("Spending")); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	before := d.Buffered()

	for i := 0; i < 3; i++ {
		got, err := d.Feed(nil)
		if err != nil || got != nil {
			t.Fatalf("Feed(nil) = %q, %v; want nil, nil", got, err)
		}
		if _, err := d.Feed([]byte{}); err != nil {
			t.Fatalf("Feed(empty) failed: %v", err)
		}
	}

	if d.Buffered() != before {
		t.Errorf("Buffered changed: got %d, want %d", d.Buffered(), before)
	}

	got := feedAll(t, d, "E")
	if !slices.Equal(got, []string{"pending"}) {
		t.Errorf("got %q after terminator, want [pending]", got)
	}
}

func TestDecoderBufferHoldsNoCompleteFrame(t *testing.T) {
	d := NewDecoder(VariantA, 0)
	feedAll(t, d, "garbage before S1E and after Sopen")
	if d.Buffered() != len("Sopen") {
		t.Errorf("Buffered = %d, want %d", d.Buffered(), len("Sopen"))
	}

	d.Reset()
	feedAll(t, d, "no start marker here")
	if d.Buffered() != 0 {
		t.Errorf("Buffered = %d after markerless input, want 0", d.Buffered())
	}
}

func TestDecoderOverflow(t *testing.T) {
	d := NewDecoder(VariantA, 8)

	got, err := d.Feed([]byte("SaESxxxxxxxxxxxx"))
	if !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
	if !slices.Equal(got, []string{"a"}) {
		t.Errorf("payloads before overflow: got %q, want [a]", got)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered = %d after overflow, want 0", d.Buffered())
	}
	if d.Overflows() != 1 {
		t.Errorf("Overflows = %d, want 1", d.Overflows())
	}

	// The decoder stays usable.
	got = feedAll(t, d, "SokE")
	if !slices.Equal(got, []string{"ok"}) {
		t.Errorf("after overflow: got %q, want [ok]", got)
	}
}

func TestNewDecoderDefaults(t *testing.T) {
	d := NewDecoder(0, 0)
	if d.Variant() != VariantB {
		t.Errorf("default variant = %s, want B", d.Variant())
	}
	if d.maxBuffer != DefaultMaxBuffer {
		t.Errorf("default maxBuffer = %d, want %d", d.maxBuffer, DefaultMaxBuffer)
	}
}
