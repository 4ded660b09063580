package device

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"propctl/config"
	"propctl/devicesim"
)

// fakeClock records pacing sleeps instead of sleeping.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// countingDialer counts dial attempts.
type countingDialer struct {
	d     net.Dialer
	dials atomic.Int32
}

func (c *countingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	c.dials.Add(1)
	return c.d.DialContext(ctx, network, addr)
}

// recordingReporter keeps every callback it receives.
type recordingReporter struct {
	mu       sync.Mutex
	commands []string
	states   []string
	packets  []uint64
	started  uint64
	finished []error
}

func (r *recordingReporter) CommandSent(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, name)
}

func (r *recordingReporter) TransferStarted(id, name string, packets uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = packets
}

func (r *recordingReporter) TransferState(id, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingReporter) PacketSent(id string, pkt uint64, frameBytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, pkt)
}

func (r *recordingReporter) TransferFinished(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, err)
}

func startSim(t *testing.T, cfg devicesim.Config) *devicesim.Simulator {
	t.Helper()
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	sim, err := devicesim.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start simulator: %v", err)
	}
	t.Cleanup(func() { sim.Close() })
	return sim
}

// testConfig points at sim with short drains so tests stay fast.
func testConfig(sim *devicesim.Simulator) config.DeviceConfig {
	cfg := config.DeviceConfig{
		Host:              "127.0.0.1",
		CommandPort:       sim.CommandPort(),
		DataPort:          sim.DataPort(),
		DrainTimeout:      config.DurationString(20 * time.Millisecond),
		FinalDrainTimeout: config.DurationString(20 * time.Millisecond),
		AnnounceTimeout:   config.DurationString(300 * time.Millisecond),
		ConnectTimeout:    config.DurationString(2 * time.Second),
	}
	cfg.SetDefaults()
	return cfg
}
