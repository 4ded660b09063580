package planner

import (
	"errors"
	"math"
	"testing"
)

func TestPlan_ThreeThousandBytes(t *testing.T) {
	p, err := Plan(3000, 1460, 9, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ChunkPayloadSize != 1440 {
		t.Errorf("expected chunk 1440, got %d", p.ChunkPayloadSize)
	}
	if p.PacketCount != 3 {
		t.Errorf("expected 3 packets, got %d", p.PacketCount)
	}
	if p.PadSize != 1320 {
		t.Errorf("expected pad 1320, got %d", p.PadSize)
	}
	if p.TotalLength() != 4320 {
		t.Errorf("expected total 4320, got %d", p.TotalLength())
	}
	if !p.IsLast(3) || p.IsLast(2) {
		t.Errorf("IsLast wrong for plan %v", p)
	}
}

func TestPlan_ZeroFile(t *testing.T) {
	p, err := Plan(0, 1460, 9, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PacketCount != 0 || p.PadSize != 0 || p.TotalLength() != 0 {
		t.Errorf("expected empty plan, got %+v", p)
	}
}

func TestPlan_ExactMultiple(t *testing.T) {
	p, err := Plan(2880, 1460, 9, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PacketCount != 2 || p.PadSize != 0 {
		t.Errorf("expected 2 packets without padding, got %+v", p)
	}
}

func TestPlan_Properties(t *testing.T) {
	for _, packet := range []uint32{21, 22, 100, 1460} {
		for size := uint64(0); size < 5000; size += 37 {
			p, err := Plan(size, packet, 9, 11)
			if err != nil {
				t.Fatalf("size %d packet %d: %v", size, packet, err)
			}
			chunk := uint64(p.ChunkPayloadSize)
			want := (size + chunk - 1) / chunk
			if p.PacketCount != want {
				t.Fatalf("size %d chunk %d: count %d, want %d", size, chunk, p.PacketCount, want)
			}
			if uint64(p.PadSize) >= chunk {
				t.Fatalf("size %d chunk %d: pad %d not below chunk", size, chunk, p.PadSize)
			}
			if p.PacketCount*chunk-uint64(p.PadSize) != size {
				t.Fatalf("size %d chunk %d: count*chunk-pad != size", size, chunk)
			}
		}
	}
}

func TestPlan_PacketTooSmall(t *testing.T) {
	for _, packet := range []uint32{0, 19, 20} {
		if _, err := Plan(10, packet, 9, 11); !errors.Is(err, ErrPacketTooSmall) {
			t.Errorf("packet %d: expected ErrPacketTooSmall, got %v", packet, err)
		}
	}
}

func TestPlan_FileTooLarge(t *testing.T) {
	if _, err := Plan(math.MaxUint32+1, 1460, 9, 11); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}
