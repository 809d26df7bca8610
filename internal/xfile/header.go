package xfile

// Human68k .X executable header.
//
//	0x00  2  magic "HU"
//	0x02  2  reserved
//	0x04  4  base address (0 = relocatable, loader picks)
//	0x08  4  entry point offset from base
//	0x0C  4  text size
//	0x10  4  data size
//	0x14  4  bss size
//	0x18  4  relocation table size
//	0x1C  4  symbol table size
//	0x20  4  SCD line table size
//	0x24 28  reserved
//
// All multi-byte fields are big-endian.

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderSize is the fixed length of an .X header
	HeaderSize = 64

	// MaxPayloadSize is the largest payload the 32-bit text size field can describe
	MaxPayloadSize = math.MaxUint32
)

// Magic identifies an .X executable
var Magic = [2]byte{0x48, 0x55}

const (
	offBaseAddress = 0x04
	offEntryPoint  = 0x08
	offTextSize    = 0x0C
	offDataSize    = 0x10
	offBSSSize     = 0x14
	offRelocSize   = 0x18
	offSymbolSize  = 0x1C
	offLineSize    = 0x20
)

// Header holds the defined fields of an .X header. The magic and the
// reserved bytes are implied by the codec.
type Header struct {
	BaseAddress uint32 `json:"base_address" yaml:"base_address"`
	EntryPoint  uint32 `json:"entry_point" yaml:"entry_point"`
	TextSize    uint32 `json:"text_size" yaml:"text_size"`
	DataSize    uint32 `json:"data_size" yaml:"data_size"`
	BSSSize     uint32 `json:"bss_size" yaml:"bss_size"`
	RelocSize   uint32 `json:"reloc_size" yaml:"reloc_size"`
	SymbolSize  uint32 `json:"symbol_size" yaml:"symbol_size"`
	LineSize    uint32 `json:"line_size" yaml:"line_size"`
}

// NewHeader returns a relocatable header whose text segment covers a
// payload of payloadLen bytes. Every other field is zero.
func NewHeader(payloadLen int) (Header, error) {
	if payloadLen < 0 {
		return Header{}, fmt.Errorf("invalid payload length %d", payloadLen)
	}
	if uint64(payloadLen) > MaxPayloadSize {
		return Header{}, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, payloadLen, uint64(MaxPayloadSize))
	}
	return Header{TextSize: uint32(payloadLen)}, nil
}

// Bytes returns the 64-byte on-disk form of h.
func (h Header) Bytes() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0] = Magic[0]
	buf[1] = Magic[1]

	be := binary.BigEndian
	be.PutUint32(buf[offBaseAddress:], h.BaseAddress)
	be.PutUint32(buf[offEntryPoint:], h.EntryPoint)
	be.PutUint32(buf[offTextSize:], h.TextSize)
	be.PutUint32(buf[offDataSize:], h.DataSize)
	be.PutUint32(buf[offBSSSize:], h.BSSSize)
	be.PutUint32(buf[offRelocSize:], h.RelocSize)
	be.PutUint32(buf[offSymbolSize:], h.SymbolSize)
	be.PutUint32(buf[offLineSize:], h.LineSize)
	return buf
}

// MarshalBinary implements encoding.BinaryMarshaler
func (h Header) MarshalBinary() ([]byte, error) {
	buf := h.Bytes()
	return buf[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (h *Header) UnmarshalBinary(b []byte) error {
	parsed, err := ParseHeader(b)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHeader decodes the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortHeader, len(b), HeaderSize)
	}
	if b[0] != Magic[0] || b[1] != Magic[1] {
		return Header{}, fmt.Errorf("%w: % x", ErrBadMagic, b[:2])
	}

	be := binary.BigEndian
	return Header{
		BaseAddress: be.Uint32(b[offBaseAddress:]),
		EntryPoint:  be.Uint32(b[offEntryPoint:]),
		TextSize:    be.Uint32(b[offTextSize:]),
		DataSize:    be.Uint32(b[offDataSize:]),
		BSSSize:     be.Uint32(b[offBSSSize:]),
		RelocSize:   be.Uint32(b[offRelocSize:]),
		SymbolSize:  be.Uint32(b[offSymbolSize:]),
		LineSize:    be.Uint32(b[offLineSize:]),
	}, nil
}

// ReadHeader reads and decodes a header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	n, err := io.ReadFull(r, buf[:])
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortHeader, n, HeaderSize)
	}
	if err != nil {
		return Header{}, err
	}
	return ParseHeader(buf[:])
}

// ImageSize is the number of bytes following the header that h describes.
func (h Header) ImageSize() uint64 {
	return uint64(h.TextSize) + uint64(h.DataSize) + uint64(h.RelocSize) +
		uint64(h.SymbolSize) + uint64(h.LineSize)
}

// Encode writes the header for payload followed by payload itself.
func Encode(w io.Writer, payload []byte) (int64, error) {
	h, err := NewHeader(len(payload))
	if err != nil {
		return 0, err
	}
	buf := h.Bytes()

	n, err := w.Write(buf[:])
	written := int64(n)
	if err != nil {
		return written, fmt.Errorf("failed to write header: %w", err)
	}
	n, err = w.Write(payload)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("failed to write payload: %w", err)
	}
	return written, nil
}
