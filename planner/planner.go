// Package planner splits an upload into fixed size chunks for the data
// channel.
package planner

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrPacketTooSmall = errors.New("packet size leaves no room for payload")
	ErrFileTooLarge   = errors.New("padded file size does not fit the 4 byte length field")
)

// TransferPlan is computed once per upload and never modified.
type TransferPlan struct {
	FileSize         uint64
	ChunkPayloadSize uint32
	PacketCount      uint64
	PadSize          uint32
}

// Plan derives the chunking of a fileSize byte upload over packets of
// packetSize bytes, each carrying headerLen+trailerLen bytes of framing.
func Plan(fileSize uint64, packetSize, headerLen, trailerLen uint32) (TransferPlan, error) {
	if uint64(packetSize) <= uint64(headerLen)+uint64(trailerLen) {
		return TransferPlan{}, fmt.Errorf("%w: packet %d, framing %d", ErrPacketTooSmall, packetSize, headerLen+trailerLen)
	}
	chunk := packetSize - headerLen - trailerLen

	count := fileSize / uint64(chunk)
	if fileSize%uint64(chunk) != 0 {
		count++
	}
	p := TransferPlan{
		FileSize:         fileSize,
		ChunkPayloadSize: chunk,
		PacketCount:      count,
		PadSize:          uint32(count*uint64(chunk) - fileSize),
	}
	if p.TotalLength() > math.MaxUint32 {
		return TransferPlan{}, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, p.TotalLength())
	}
	return p, nil
}

// TotalLength is the padded length announced to the device.
func (p TransferPlan) TotalLength() uint64 {
	return p.FileSize + uint64(p.PadSize)
}

// IsLast reports whether the 1-based packet number pkt is the final one.
func (p TransferPlan) IsLast(pkt uint64) bool {
	return pkt == p.PacketCount
}

func (p TransferPlan) String() string {
	return fmt.Sprintf("fsize=%d, chunksize=%d, npackets=%d, padsize=%d",
		p.FileSize, p.ChunkPayloadSize, p.PacketCount, p.PadSize)
}
