// Package ihex reads and writes Intel HEX firmware images.
package ihex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ardnew/hoodloader/pkg"
)

// Record types.
const (
	RecordData                   = 0x00
	RecordEOF                    = 0x01
	RecordExtendedSegmentAddress = 0x02
	RecordStartSegmentAddress    = 0x03
	RecordExtendedLinearAddress  = 0x04
	RecordStartLinearAddress     = 0x05
)

// recordHeaderSize is length (1) + address (2) + type (1).
const recordHeaderSize = 4

// Fill is the value of bytes not covered by any data record.
const Fill = 0xFF

// Segment is a contiguous run of data.
type Segment struct {
	Address uint32
	Data    []byte
}

// End returns the address following the segment.
func (s Segment) End() uint32 {
	return s.Address + uint32(len(s.Data))
}

// Image is a parsed HEX file.
type Image struct {
	Segments []Segment // sorted by address, adjacent records merged
}

// Size returns the address following the last data byte.
func (img *Image) Size() uint32 {
	if len(img.Segments) == 0 {
		return 0
	}
	return img.Segments[len(img.Segments)-1].End()
}

// Bytes returns a flat image from address 0 to Size, with gaps filled
// with 0xFF.
func (img *Image) Bytes() []byte {
	out := make([]byte, img.Size())
	for i := range out {
		out[i] = Fill
	}
	for _, s := range img.Segments {
		copy(out[s.Address:], s.Data)
	}
	return out
}

// Parse parses the HEX file at path.
func Parse(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader parses HEX records from r until the end-of-file record.
func ParseReader(r io.Reader) (*Image, error) {
	scanner := bufio.NewScanner(r)
	var (
		img    Image
		base   uint32
		eof    bool
		lineNo int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if eof {
			return nil, fmt.Errorf("line %d: %w: data after end-of-file record", lineNo, pkg.ErrBadImage)
		}

		typ, addr, data, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch typ {
		case RecordData:
			img.add(base+uint32(addr), data)
		case RecordEOF:
			eof = true
		case RecordExtendedSegmentAddress, RecordExtendedLinearAddress:
			if len(data) != 2 {
				return nil, fmt.Errorf("line %d: %w: address record length %d", lineNo, pkg.ErrBadImage, len(data))
			}
			base = uint32(data[0])<<8 | uint32(data[1])
			if typ == RecordExtendedSegmentAddress {
				base <<= 4
			} else {
				base <<= 16
			}
		case RecordStartSegmentAddress, RecordStartLinearAddress:
			// Entry points are meaningless to a bootloader.
		default:
			return nil, fmt.Errorf("line %d: %w: record type 0x%02X", lineNo, pkg.ErrBadImage, typ)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !eof {
		return nil, fmt.Errorf("%w: missing end-of-file record", pkg.ErrBadImage)
	}
	img.normalize()
	return &img, nil
}

// parseRecord decodes ":LLAAAATT<data>CC" and checks its checksum.
func parseRecord(line string) (typ byte, addr uint16, data []byte, err error) {
	if line[0] != ':' {
		return 0, 0, nil, fmt.Errorf("%w: missing start code", pkg.ErrBadImage)
	}
	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("%w: %v", pkg.ErrBadImage, err)
	}
	if len(raw) < recordHeaderSize+1 {
		return 0, 0, nil, fmt.Errorf("%w: record too short", pkg.ErrBadImage)
	}
	n := int(raw[0])
	if len(raw) != recordHeaderSize+n+1 {
		return 0, 0, nil, fmt.Errorf("%w: length %d does not match record", pkg.ErrBadImage, n)
	}
	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return 0, 0, nil, fmt.Errorf("%w: checksum mismatch", pkg.ErrBadImage)
	}
	return raw[3], uint16(raw[1])<<8 | uint16(raw[2]), raw[recordHeaderSize : recordHeaderSize+n], nil
}

func (img *Image) add(addr uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	if n := len(img.Segments); n > 0 && img.Segments[n-1].End() == addr {
		img.Segments[n-1].Data = append(img.Segments[n-1].Data, data...)
		return
	}
	img.Segments = append(img.Segments, Segment{Address: addr, Data: append([]byte{}, data...)})
}

// normalize sorts segments and merges the ones that touch. Overlapping
// records keep the later data.
func (img *Image) normalize() {
	sort.SliceStable(img.Segments, func(i, j int) bool {
		return img.Segments[i].Address < img.Segments[j].Address
	})
	var out []Segment
	for _, s := range img.Segments {
		if n := len(out); n > 0 && s.Address <= out[n-1].End() {
			last := &out[n-1]
			if end := s.End(); end > last.End() {
				last.Data = append(last.Data, make([]byte, end-last.End())...)
			}
			copy(last.Data[s.Address-last.Address:], s.Data)
			continue
		}
		out = append(out, s)
	}
	img.Segments = out
}

// bytesPerRecord is the data length of records written by Encode.
const bytesPerRecord = 16

// Encode writes data starting at address 0 as HEX records. Extended
// linear address records are emitted when data crosses a 64 KiB boundary.
func Encode(w io.Writer, data []byte) error {
	bw := bufio.NewWriter(w)
	var upper uint32
	for off := 0; off < len(data); off += bytesPerRecord {
		addr := uint32(off)
		if hi := addr >> 16; hi != upper {
			upper = hi
			writeRecord(bw, RecordExtendedLinearAddress, 0, []byte{byte(hi >> 8), byte(hi)})
		}
		writeRecord(bw, RecordData, uint16(addr), data[off:min(off+bytesPerRecord, len(data))])
	}
	writeRecord(bw, RecordEOF, 0, nil)
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, typ byte, addr uint16, data []byte) {
	raw := make([]byte, 0, recordHeaderSize+len(data)+1)
	raw = append(raw, byte(len(data)), byte(addr>>8), byte(addr), typ)
	raw = append(raw, data...)
	var sum byte
	for _, b := range raw {
		sum += b
	}
	raw = append(raw, -sum)
	fmt.Fprintf(w, ":%s\n", strings.ToUpper(hex.EncodeToString(raw)))
}
