package protocol

import (
	"encoding/binary"
	"errors"
)

var (
	ErrInvalidMagic   = errors.New("invalid protocol magic")
	ErrInvalidVersion = errors.New("unsupported protocol version")
	ErrInvalidHeader  = errors.New("invalid header")
	ErrPayloadTooBig  = errors.New("payload exceeds maximum size")
)

// Header represents the framed envelope header. Every unit on the wire,
// in either direction, starts with one.
type Header struct {
	Magic     uint32    // Magic number (0x4154524D)
	Version   uint16    // Protocol version
	Type      uint16    // Message type
	RequestID RequestID // Correlation id; zero on uncorrelated units
	Length    uint32    // Payload length
}

// Encode encodes the header to bytes
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)

	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Type)
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.RequestID))
	binary.BigEndian.PutUint32(buf[12:16], h.Length)

	return buf
}

// Decode decodes the header from bytes
func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrInvalidHeader
	}

	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	h.Version = binary.BigEndian.Uint16(buf[4:6])
	h.Type = binary.BigEndian.Uint16(buf[6:8])
	h.RequestID = RequestID(binary.BigEndian.Uint32(buf[8:12]))
	h.Length = binary.BigEndian.Uint32(buf[12:16])

	return nil
}

// Validate validates the header
func (h *Header) Validate() error {
	if h.Magic != ProtocolMagic {
		return ErrInvalidMagic
	}

	if h.Version != ProtocolVersion {
		return ErrInvalidVersion
	}

	if h.Length > MaxPayloadSize {
		return ErrPayloadTooBig
	}

	return nil
}
