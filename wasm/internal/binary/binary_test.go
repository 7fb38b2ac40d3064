package binary

import (
	"bytes"
	"math"
	"testing"
)

func TestWriterBasic(t *testing.T) {
	w := NewWriter()
	if w.Len() != 0 {
		t.Errorf("initial Len: got %d, want 0", w.Len())
	}

	w.Byte(0x42)
	w.WriteBytes([]byte{0x01, 0x02, 0x03})
	if w.Len() != 4 {
		t.Errorf("Len: got %d, want 4", w.Len())
	}
	if got, want := w.Bytes(), []byte{0x42, 0x01, 0x02, 0x03}; !bytes.Equal(got, want) {
		t.Errorf("Bytes: got %v, want %v", got, want)
	}
}

func TestWriterWriteU32(t *testing.T) {
	tests := []struct {
		want  []byte
		value uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		w := NewWriter()
		w.WriteU32(tt.value)
		if got := w.Bytes(); !bytes.Equal(got, tt.want) {
			t.Errorf("WriteU32(%d): got %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestWriterWriteU64(t *testing.T) {
	w := NewWriter()
	w.WriteU64(1 << 35)
	want := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if got := w.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("WriteU64: got %v, want %v", got, want)
	}
}

func TestWriterWriteS64(t *testing.T) {
	tests := []struct {
		want  []byte
		value int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, -1},
		{[]byte{0x3f}, 63},
		{[]byte{0x40}, -64},
		{[]byte{0xc0, 0x00}, 64},
		{[]byte{0xbf, 0x7f}, -65},
	}

	for _, tt := range tests {
		w := NewWriter()
		w.WriteS64(tt.value)
		if got := w.Bytes(); !bytes.Equal(got, tt.want) {
			t.Errorf("WriteS64(%d): got %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestWriterWriteName(t *testing.T) {
	w := NewWriter()
	w.WriteName("test")
	if got, want := w.Bytes(), []byte{0x04, 't', 'e', 's', 't'}; !bytes.Equal(got, want) {
		t.Errorf("WriteName: got %v, want %v", got, want)
	}
}

func TestWriterFixedWidth(t *testing.T) {
	w := NewWriter()
	w.WriteU32LE(0x04030201)
	w.WriteF64(math.Float64frombits(0x0807060504030201))
	want := []byte{1, 2, 3, 4, 1, 2, 3, 4, 5, 6, 7, 8}
	if got := w.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("fixed width: got %v, want %v", got, want)
	}
}
