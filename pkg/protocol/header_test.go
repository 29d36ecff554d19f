package protocol

import (
	"testing"
)

func TestHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		header *Header
	}{
		{
			name: "request header",
			header: &Header{
				Magic:     ProtocolMagic,
				Version:   ProtocolVersion,
				Type:      MsgTypeSendMessage,
				RequestID: 42,
				Length:    1024,
			},
		},
		{
			name: "uncorrelated event header",
			header: &Header{
				Magic:     ProtocolMagic,
				Version:   ProtocolVersion,
				Type:      MsgTypeAddMessage,
				RequestID: 0,
				Length:    256,
			},
		},
		{
			name: "zero length header",
			header: &Header{
				Magic:     ProtocolMagic,
				Version:   ProtocolVersion,
				Type:      MsgTypeDeselectRoom,
				RequestID: 7,
				Length:    0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.header.Encode()

			if len(encoded) != HeaderSize {
				t.Fatalf("Encode() length = %d, want %d", len(encoded), HeaderSize)
			}

			decoded := &Header{}
			if err := decoded.Decode(encoded); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if *decoded != *tt.header {
				t.Errorf("Decode() = %+v, want %+v", decoded, tt.header)
			}
		})
	}
}

func TestHeaderValidate(t *testing.T) {
	tests := []struct {
		name    string
		header  *Header
		wantErr error
	}{
		{
			name: "valid header",
			header: &Header{
				Magic:   ProtocolMagic,
				Version: ProtocolVersion,
				Type:    MsgTypeLogOut,
			},
			wantErr: nil,
		},
		{
			name: "bad magic",
			header: &Header{
				Magic:   0xDEADBEEF,
				Version: ProtocolVersion,
			},
			wantErr: ErrInvalidMagic,
		},
		{
			name: "bad version",
			header: &Header{
				Magic:   ProtocolMagic,
				Version: 0x0200,
			},
			wantErr: ErrInvalidVersion,
		},
		{
			name: "oversized payload",
			header: &Header{
				Magic:   ProtocolMagic,
				Version: ProtocolVersion,
				Length:  MaxPayloadSize + 1,
			},
			wantErr: ErrPayloadTooBig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.header.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHeaderDecodeShortBuffer(t *testing.T) {
	header := &Header{}
	if err := header.Decode(make([]byte, HeaderSize-1)); err != ErrInvalidHeader {
		t.Errorf("Decode() error = %v, want %v", err, ErrInvalidHeader)
	}
}
