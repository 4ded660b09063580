package status

import (
	"errors"
	"fmt"
	"testing"

	"propctl/limiter"
)

func TestMonitor_TransferLifecycle(t *testing.T) {
	m := NewMonitor()
	m.TransferStarted("t1", "a.bin", 3)
	m.TransferState("t1", "uploading")
	m.PacketSent("t1", 1, 1460)
	m.PacketSent("t1", 2, 1460)

	got, ok := m.Transfer("t1")
	if !ok {
		t.Fatal("transfer not found")
	}
	if got.State != "uploading" || got.PacketsSent != 2 || got.BytesSent != 2920 {
		t.Errorf("unexpected status %+v", got)
	}
	if p := got.Percent(); p < 66 || p > 67 {
		t.Errorf("unexpected percent %.2f", p)
	}

	m.TransferFinished("t1", errors.New("boom"))
	got, _ = m.Transfer("t1")
	if got.Finished == nil || got.Error != "boom" {
		t.Errorf("finish not recorded: %+v", got)
	}
	c := m.Counters()
	if c.UploadsStarted != 1 || c.UploadsFailed != 1 {
		t.Errorf("unexpected counters %+v", c)
	}
}

func TestMonitor_UnknownIDIgnored(t *testing.T) {
	m := NewMonitor()
	m.TransferState("nope", "closed")
	m.PacketSent("nope", 1, 10)
	m.TransferFinished("nope", nil)
	if len(m.Transfers()) != 0 {
		t.Fatal("unknown ids must not create entries")
	}
}

func TestMonitor_CommandCounters(t *testing.T) {
	m := NewMonitor()
	m.CommandSent("play", nil)
	m.CommandSent("pause", errors.New("refused"))
	c := m.Counters()
	if c.CommandsSent != 2 || c.CommandsFailed != 1 {
		t.Errorf("unexpected counters %+v", c)
	}
}

func TestMonitor_HistoryBounded(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < maxHistory+5; i++ {
		id := fmt.Sprintf("t%d", i)
		m.TransferStarted(id, "a.bin", 1)
		m.TransferFinished(id, nil)
	}
	list := m.Transfers()
	if len(list) > maxHistory+1 {
		t.Fatalf("history not trimmed: %d entries", len(list))
	}
	if list[len(list)-1].ID != fmt.Sprintf("t%d", maxHistory+4) {
		t.Errorf("newest transfer missing: %+v", list[len(list)-1])
	}
}

func TestMonitor_ZeroPacketPercent(t *testing.T) {
	if p := (TransferStatus{}).Percent(); p != 100 {
		t.Errorf("empty transfer should be complete, got %.1f", p)
	}
}

func TestMonitor_RegisterLimiter(t *testing.T) {
	m := NewMonitor()
	m.RegisterLimiter(limiter.NewSharedLimiter(-1, nil))
	if c := m.Counters(); c.ActiveRateBytes != 0 {
		t.Errorf("expected zero rate, got %d", c.ActiveRateBytes)
	}
}
