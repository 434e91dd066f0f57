// Package parser extracts DNS query names (QNAMEs) from raw UDP payloads,
// including RFC 1035 label-compression pointers, under adversarial input.
// It is pure and dependency-free: the hard engineering here is robustness,
// not library wiring (spec.md §4.1).
package parser

import "strings"

const (
	headerLen      = 12
	defaultJumpLim = 5
)

// ExtractQueries returns the QNAMEs found in payload, the UDP body claimed
// to be a DNS message. The header is the first 12 bytes; QDCOUNT is bytes
// 4-5, big-endian. On any parse failure or truncation, it returns what has
// been parsed so far and stops (partial success never panics, never reads
// out of bounds).
func ExtractQueries(payload []byte) []string {
	if len(payload) < headerLen {
		return nil
	}
	qdcount := int(payload[4])<<8 | int(payload[5])
	if qdcount == 0 {
		return nil
	}

	var names []string
	pos := headerLen
	for i := 0; i < qdcount; i++ {
		name, next, ok := readName(payload, pos, len(payload), defaultJumpLim)
		if !ok {
			break
		}
		names = append(names, name)
		pos = next
		// Skip QTYPE (2 bytes) + QCLASS (2 bytes), bounds-checked.
		if pos+4 > len(payload) {
			break
		}
		pos += 4
	}
	return names
}

// ReadName decodes a single DNS wire name starting at pos, honoring
// compression pointers up to jumpLimit total pointer follows. It returns
// the decoded name, the position immediately after the name as read from
// the original site (after a pointer this is pos+2, after a terminator
// pos+1), and whether decoding succeeded.
func ReadName(payload []byte, pos, maxLen, jumpLimit int) (string, int, bool) {
	return readName(payload, pos, maxLen, jumpLimit)
}

// readName is the iterative walker backing ReadName/ExtractQueries. It
// never recurses: compression pointers are followed in a loop with a
// decrementing jump budget, guarding against pointer cycles without risking
// stack overflow (spec.md §4.1, §9).
func readName(payload []byte, pos, maxLen, jumpLimit int) (string, int, bool) {
	if pos < 0 || pos >= maxLen {
		return "", 0, false
	}

	var labels []string
	cursor := pos
	jumps := 0
	// endPos is the position immediately after the name as observed at the
	// original call site; it is fixed the first time we follow a pointer or
	// hit the terminator, whichever comes first.
	endPos := -1

	for {
		if cursor >= maxLen {
			return "", 0, false
		}
		b := payload[cursor]

		switch b >> 6 {
		case 0b00:
			length := int(b)
			if length == 0 {
				// Terminator.
				if endPos == -1 {
					endPos = cursor + 1
				}
				name := strings.Join(labels, ".")
				return name, endPos, true
			}
			if length > 63 {
				return "", 0, false
			}
			start := cursor + 1
			if start+length > maxLen {
				return "", 0, false
			}
			labels = append(labels, string(payload[start:start+length]))
			cursor = start + length

		case 0b11:
			if cursor+1 >= maxLen {
				return "", 0, false
			}
			target := (int(b&0x3f) << 8) | int(payload[cursor+1])
			if endPos == -1 {
				endPos = cursor + 2
			}
			if target >= maxLen {
				return "", 0, false
			}
			jumps++
			if jumps > jumpLimit {
				return "", 0, false
			}
			cursor = target

		default:
			// 0b01 and 0b10 are reserved formats.
			return "", 0, false
		}
	}
}
