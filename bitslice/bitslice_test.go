package bitslice

import "testing"

func TestSlice(t *testing.T) {
	cases := []struct {
		name           string
		data           []byte
		offset, length int
		want           uint32
	}{
		{"msb of first byte", []byte{0x80, 0x00}, 0, 1, 1},
		{"spans byte boundary", []byte{0x01, 0x80}, 7, 2, 3},
		{"whole byte", []byte{0xA5}, 0, 8, 0xA5},
		{"mid byte nibble", []byte{0x3C}, 2, 4, 0xF},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Slice(c.data, c.offset, c.length)
			if err != nil {
				t.Fatalf("Slice: %v", err)
			}
			if got != c.want {
				t.Fatalf("Slice(%v, %d, %d) = %#x, want %#x", c.data, c.offset, c.length, got, c.want)
			}
		})
	}
}

func TestSliceReconstructsWholeBuffer(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	var rebuilt uint32
	for i := 0; i < len(data); i++ {
		b, err := Slice(data, i*8, 8)
		if err != nil {
			t.Fatalf("Slice: %v", err)
		}
		rebuilt = (rebuilt << 8) | b
	}
	want := uint32(0xDEADBEEF)
	if rebuilt != want {
		t.Fatalf("reconstructed %#x, want %#x", rebuilt, want)
	}
}

func TestSliceRejectsOversizeLength(t *testing.T) {
	if _, err := Slice([]byte{0, 0, 0, 0, 0}, 0, 33); err == nil {
		t.Fatalf("expected error for length > 32")
	}
}

func TestSliceRejectsOutOfRangeSpan(t *testing.T) {
	if _, err := Slice([]byte{0x00}, 4, 8); err == nil {
		t.Fatalf("expected error for span exceeding buffer")
	}
}
