package parser

import (
	"encoding/binary"
	"testing"
)

// header builds a minimal 12-byte DNS header with the given QDCOUNT.
func header(qdcount uint16) []byte {
	h := make([]byte, headerLen)
	binary.BigEndian.PutUint16(h[4:6], qdcount)
	return h
}

// label appends a length-prefixed label.
func label(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func TestExtractQueriesSingleName(t *testing.T) {
	payload := header(1)
	payload = append(payload, label("a")...)
	payload = append(payload, label("example")...)
	payload = append(payload, label("com")...)
	payload = append(payload, 0x00)          // terminator
	payload = append(payload, 0x00, 0x01)    // QTYPE
	payload = append(payload, 0x00, 0x01)    // QCLASS

	got := ExtractQueries(payload)
	if len(got) != 1 || got[0] != "a.example.com" {
		t.Fatalf("got %v, want [a.example.com]", got)
	}
}

func TestExtractQueriesEmptyBelowMinLen(t *testing.T) {
	if got := ExtractQueries(make([]byte, 11)); got != nil {
		t.Errorf("expected nil for truncated header, got %v", got)
	}
}

func TestExtractQueriesZeroQDCount(t *testing.T) {
	if got := ExtractQueries(header(0)); got != nil {
		t.Errorf("expected nil for QDCOUNT=0, got %v", got)
	}
}

func TestExtractQueriesMultipleNames(t *testing.T) {
	payload := header(2)
	q1 := append(label("one"), 0x00)
	q1 = append(q1, 0x00, 0x01, 0x00, 0x01)
	q2 := append(label("two"), 0x00)
	q2 = append(q2, 0x00, 0x01, 0x00, 0x01)
	payload = append(payload, q1...)
	payload = append(payload, q2...)

	got := ExtractQueries(payload)
	want := []string{"one", "two"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractQueriesPartialOnTruncation(t *testing.T) {
	// QDCOUNT=2 but only one full query present; the second read must fail
	// and the first must still be returned (partial success).
	payload := header(2)
	q1 := append(label("one"), 0x00)
	q1 = append(q1, 0x00, 0x01, 0x00, 0x01)
	payload = append(payload, q1...)

	got := ExtractQueries(payload)
	if len(got) != 1 || got[0] != "one" {
		t.Fatalf("got %v, want [one]", got)
	}
}

func TestReadNameLengthByteTooLong(t *testing.T) {
	payload := append(header(0), 64) // length 64 > 63 under format 00
	_, _, ok := ReadName(payload, headerLen, len(payload), defaultJumpLim)
	if ok {
		t.Error("expected failure for label length > 63")
	}
}

func TestReadNameReservedFormatFails(t *testing.T) {
	for _, hi := range []byte{0b01000000, 0b10000000} {
		payload := append(header(0), hi)
		_, _, ok := ReadName(payload, headerLen, len(payload), defaultJumpLim)
		if ok {
			t.Errorf("expected failure for reserved format bits %08b", hi)
		}
	}
}

func TestReadNamePointerTargetOutOfBounds(t *testing.T) {
	payload := append(header(0), 0xC0, 0xFF) // pointer target 255, way past maxLen
	_, _, ok := ReadName(payload, headerLen, len(payload), defaultJumpLim)
	if ok {
		t.Error("expected failure for out-of-bounds pointer target")
	}
}

func TestReadNamePointerSecondByteMissing(t *testing.T) {
	payload := append(header(0), 0xC0) // pointer with no second byte
	_, _, ok := ReadName(payload, headerLen, len(payload), defaultJumpLim)
	if ok {
		t.Error("expected failure for truncated pointer")
	}
}

func TestReadNameBoundsCheckBeforeCopy(t *testing.T) {
	payload := append(header(0), 10, 'a', 'b') // length 10 but only 2 bytes follow
	_, _, ok := ReadName(payload, headerLen, len(payload), defaultJumpLim)
	if ok {
		t.Error("expected failure when label claims more bytes than remain")
	}
}

// TestReadNameSelfLoopPointer is end-to-end scenario 5 from spec.md §8:
// a self-referential compression pointer must fail within jump_limit, not
// overflow the stack or loop forever.
func TestReadNameSelfLoopPointer(t *testing.T) {
	payload := header(1)
	payload = append(payload, label("a")...)
	payload = append(payload, 0xC0, 0x0C) // pointer to offset 12 (the name itself)

	got := ExtractQueries(payload)
	if got != nil {
		t.Errorf("expected empty result for self-referential pointer, got %v", got)
	}
}

func TestReadNameCompressionPointerJoinsLabels(t *testing.T) {
	// Build a message where the second query's name is a pointer to the
	// first query's name, exercising the compression path end-to-end.
	payload := header(2)
	firstNameOffset := len(payload)
	q1 := append(label("www"), label("example")...)
	q1 = append(q1, label("com")...)
	q1 = append(q1, 0x00)
	q1 = append(q1, 0x00, 0x01, 0x00, 0x01)
	payload = append(payload, q1...)

	ptrHi := byte(0xC0 | (firstNameOffset >> 8))
	ptrLo := byte(firstNameOffset & 0xFF)
	q2 := []byte{ptrHi, ptrLo, 0x00, 0x01, 0x00, 0x01}
	payload = append(payload, q2...)

	got := ExtractQueries(payload)
	want := []string{"www.example.com", "www.example.com"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReadNamePartialLabelsThenPointer(t *testing.T) {
	// "sub" + pointer to a name consisting of "example.com", exercising
	// "control does not return to consume further labels at the original
	// site" (spec.md §4.1).
	payload := header(2)
	baseOffset := len(payload)
	base := append(label("example"), label("com")...)
	base = append(base, 0x00)
	base = append(base, 0x00, 0x01, 0x00, 0x01)
	payload = append(payload, base...)

	ptrHi := byte(0xC0 | (baseOffset >> 8))
	ptrLo := byte(baseOffset & 0xFF)
	q2 := append(label("sub"), ptrHi, ptrLo)
	q2 = append(q2, 0x00, 0x01, 0x00, 0x01)
	payload = append(payload, q2...)

	got := ExtractQueries(payload)
	if len(got) != 2 || got[1] != "sub.example.com" {
		t.Fatalf("got %v, want second entry sub.example.com", got)
	}
}

func TestExtractQueriesBoundedOnLargeAdversarialInput(t *testing.T) {
	// Parser safety: any input up to 65535 bytes must return without
	// touching memory outside the input and without hanging.
	payload := make([]byte, 65535)
	binary.BigEndian.PutUint16(payload[4:6], 1)
	for i := headerLen; i < len(payload)-1; i++ {
		payload[i] = 0xC0 // looks like the start of a pointer everywhere
	}
	got := ExtractQueries(payload)
	_ = got // must not panic; result content is not asserted
}
