package voice

import (
	"bufio"
	"io"
)

const oggReadBuffer = 64 * 1024

type oggPage struct {
	isHeader bool
	packets  [][]byte
}

// oggReader splits an ogg/opus byte stream into opus packets.
type oggReader struct {
	r *bufio.Reader
}

func newOggReader(r io.Reader) *oggReader {
	return &oggReader{r: bufio.NewReaderSize(r, oggReadBuffer)}
}

func (o *oggReader) nextPage() (*oggPage, error) {
	if err := o.syncToPage(); err != nil {
		return nil, err
	}

	// Capture pattern already consumed; 23 bytes of header remain.
	headerRest := make([]byte, 23)
	if _, err := io.ReadFull(o.r, headerRest); err != nil {
		return nil, err
	}

	headerType := headerRest[1]
	pageSegments := headerRest[22]

	segmentTable := make([]byte, pageSegments)
	if _, err := io.ReadFull(o.r, segmentTable); err != nil {
		return nil, err
	}

	pageSize := 0
	for _, seg := range segmentTable {
		pageSize += int(seg)
	}

	pageData := make([]byte, pageSize)
	if _, err := io.ReadFull(o.r, pageData); err != nil {
		return nil, err
	}

	isHeader := headerType&0x02 != 0
	if len(pageData) >= 8 {
		magic := string(pageData[:8])
		if magic == "OpusHead" || magic == "OpusTags" {
			isHeader = true
		}
	}

	return &oggPage{
		isHeader: isHeader,
		packets:  splitPackets(segmentTable, pageData),
	}, nil
}

func (o *oggReader) syncToPage() error {
	for {
		b, err := o.r.ReadByte()
		if err != nil {
			return err
		}
		if b != 'O' {
			continue
		}

		peek, err := o.r.Peek(3)
		if err != nil {
			return err
		}
		if string(peek) == "ggS" {
			_, err = o.r.Discard(3)
			return err
		}
	}
}

// splitPackets applies ogg lacing: a segment shorter than 255 bytes closes
// the current packet.
func splitPackets(segmentTable, pageData []byte) [][]byte {
	var packets [][]byte
	var current []byte
	offset := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		packet := make([]byte, len(current))
		copy(packet, current)
		packets = append(packets, packet)
		current = current[:0]
	}

	for _, segSize := range segmentTable {
		size := int(segSize)
		if offset+size > len(pageData) {
			break
		}

		current = append(current, pageData[offset:offset+size]...)
		offset += size

		if segSize < 255 {
			flush()
		}
	}
	flush()

	return packets
}
