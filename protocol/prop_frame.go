package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Vendor constants. These have no internal structure we rely on; they are
// matched and emitted byte for byte.
var (
	PacketHeader    = []byte("d31d88JMP")
	PacketTrailer   = []byte("000a4a8c2e3")
	AnnounceHeader  = []byte("d31d66DF")
	AnnounceTrailer = []byte("a4a8c2e3")
	ReadyAck        = []byte("d30d66DEJffffa4a8c2e3")
	TransferEnd     = []byte("d31d88DEFa4a8c2e3")
)

const (
	PacketHeaderLen  = 9
	PacketTrailerLen = 11

	// AnnounceLengthBias is added to the encoded name length to form the
	// announce length byte.
	AnnounceLengthBias = 61

	// DefaultPacketSize is the transport packet size of the current firmware.
	DefaultPacketSize = 1460

	// PadByte fills the tail of the final chunk. ASCII '0', not NUL.
	PadByte = '0'
)

var (
	ErrShortFrame     = errors.New("frame too short")
	ErrBadHeader      = errors.New("frame header mismatch")
	ErrBadTrailer     = errors.New("frame trailer mismatch")
	ErrNameTooLong    = errors.New("encoded name does not fit the announce length byte")
	ErrBadAnnounceLen = errors.New("announce length byte below bias")
)

// EncodeDataFrame wraps payload in the data packet header and trailer.
// The caller is responsible for payload being exactly one chunk.
func EncodeDataFrame(payload []byte) []byte {
	buf := make([]byte, PacketHeaderLen+len(payload)+PacketTrailerLen)
	copy(buf, PacketHeader)
	copy(buf[PacketHeaderLen:], payload)
	copy(buf[PacketHeaderLen+len(payload):], PacketTrailer)
	return buf
}

// DecodeDataFrame returns the payload of a complete data frame.
func DecodeDataFrame(frame []byte) ([]byte, error) {
	if len(frame) < PacketHeaderLen+PacketTrailerLen {
		return nil, ErrShortFrame
	}
	if !bytes.Equal(frame[:PacketHeaderLen], PacketHeader) {
		return nil, ErrBadHeader
	}
	end := len(frame) - PacketTrailerLen
	if !bytes.Equal(frame[end:], PacketTrailer) {
		return nil, ErrBadTrailer
	}
	payload := make([]byte, end-PacketHeaderLen)
	copy(payload, frame[PacketHeaderLen:end])
	return payload, nil
}

// DataFrameSize is the on-wire size of a data frame carrying chunkSize bytes.
func DataFrameSize(chunkSize int) int {
	return PacketHeaderLen + chunkSize + PacketTrailerLen
}

// Announce is the decoded filename announcement.
type Announce struct {
	TotalLength uint32
	Name        []byte
}

// EncodeAnnounceFrame builds the message declaring the padded upload length
// and the target file name. Name rules (suffix, 12 byte limit) are checked
// by the caller.
func EncodeAnnounceFrame(totalLength uint32, name string) ([]byte, error) {
	nameBytes, err := EncodeName(name)
	if err != nil {
		return nil, err
	}
	if len(nameBytes)+AnnounceLengthBias > 0xff {
		return nil, ErrNameTooLong
	}

	buf := make([]byte, 0, len(AnnounceHeader)+1+4+len(nameBytes)+len(AnnounceTrailer))
	buf = append(buf, AnnounceHeader...)
	buf = append(buf, byte(len(nameBytes)+AnnounceLengthBias))
	buf = binary.BigEndian.AppendUint32(buf, totalLength)
	buf = append(buf, nameBytes...)
	buf = append(buf, AnnounceTrailer...)
	return buf, nil
}

// DecodeAnnounce reads one announce message from r.
func DecodeAnnounce(r io.Reader) (*Announce, error) {
	hdr := make([]byte, len(AnnounceHeader)+1+4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if !bytes.Equal(hdr[:len(AnnounceHeader)], AnnounceHeader) {
		return nil, ErrBadHeader
	}
	lengthByte := int(hdr[len(AnnounceHeader)])
	if lengthByte < AnnounceLengthBias {
		return nil, ErrBadAnnounceLen
	}
	total := binary.BigEndian.Uint32(hdr[len(AnnounceHeader)+1:])

	rest := make([]byte, lengthByte-AnnounceLengthBias+len(AnnounceTrailer))
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	nameLen := len(rest) - len(AnnounceTrailer)
	if !bytes.Equal(rest[nameLen:], AnnounceTrailer) {
		return nil, ErrBadTrailer
	}
	return &Announce{TotalLength: total, Name: rest[:nameLen]}, nil
}

// IsReadyAck reports whether b is exactly the device's ready acknowledgment.
func IsReadyAck(b []byte) bool {
	return bytes.Equal(b, ReadyAck)
}

// TerminatorFrame returns the end-of-transfer message.
func TerminatorFrame() []byte {
	return bytes.Clone(TransferEnd)
}

// FormatBytes renders b as a comma separated list of decimal byte values,
// the form used in device diagnostics.
func FormatBytes(b []byte) string {
	var sb bytes.Buffer
	for i, v := range b {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", v)
	}
	return sb.String()
}
