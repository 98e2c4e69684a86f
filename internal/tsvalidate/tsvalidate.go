// Package tsvalidate sanity-checks MPEG-TS byte frames before they are
// appended to the session's stream file: every packet-sized chunk must
// begin with the standard 0x47 sync byte, so a torn or non-TS payload
// (an empty-fragment substitution aside) is caught and logged rather
// than silently corrupting the output.
package tsvalidate

import (
	"fmt"

	"github.com/Comcast/gots/v2/packet"
)

// syncByte is the MPEG-TS packet sync byte (ISO/IEC 13818-1).
const syncByte = 0x47

// Validate reports whether data is a well-formed sequence of MPEG-TS
// packets: a multiple of packet.PacketSize, and beginning each packet
// with the sync byte. An empty slice (the empty-payload
// substitute for a permanently failed fragment) is valid by
// definition — it carries no packets to check.
func Validate(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(data)%packet.PacketSize != 0 {
		return fmt.Errorf("tsvalidate: length %d is not a multiple of packet size %d", len(data), packet.PacketSize)
	}
	for offset := 0; offset < len(data); offset += packet.PacketSize {
		if data[offset] != syncByte {
			return fmt.Errorf("tsvalidate: missing sync byte at offset %d", offset)
		}
	}
	return nil
}

// PacketCount returns how many whole MPEG-TS packets data contains.
func PacketCount(data []byte) int {
	return len(data) / packet.PacketSize
}
