package status

import (
	"sync"
	"sync/atomic"
	"time"

	"propctl/limiter"
)

// maxHistory bounds the number of finished transfers kept for display.
const maxHistory = 16

// TransferStatus is a point-in-time view of one upload.
type TransferStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	State       string     `json:"state"`
	PacketsSent uint64     `json:"packets_sent"`
	PacketCount uint64     `json:"packet_count"`
	BytesSent   int64      `json:"bytes_sent"`
	Started     time.Time  `json:"started"`
	Finished    *time.Time `json:"finished,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Percent is the share of packets already on the wire.
func (t TransferStatus) Percent() float64 {
	if t.PacketCount == 0 {
		return 100
	}
	return 100 * float64(t.PacketsSent) / float64(t.PacketCount)
}

// Counters are totals since process start.
type Counters struct {
	CommandsSent    int64 `json:"commands_sent"`
	CommandsFailed  int64 `json:"commands_failed"`
	UploadsStarted  int64 `json:"uploads_started"`
	UploadsFailed   int64 `json:"uploads_failed"`
	ActiveRateBytes int64 `json:"active_rate_bytes"`
}

// Monitor tracks commands and uploads for status reporting
type Monitor struct {
	commandsSent   atomic.Int64
	commandsFailed atomic.Int64
	uploadsStarted atomic.Int64
	uploadsFailed  atomic.Int64

	mu        sync.Mutex
	transfers map[string]*TransferStatus
	order     []string
	limiter   *limiter.SharedLimiter
}

func NewMonitor() *Monitor {
	return &Monitor{transfers: make(map[string]*TransferStatus)}
}

// RegisterLimiter makes the data channel rate visible in Counters.
func (m *Monitor) RegisterLimiter(l *limiter.SharedLimiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiter = l
}

func (m *Monitor) CommandSent(name string, err error) {
	m.commandsSent.Add(1)
	if err != nil {
		m.commandsFailed.Add(1)
	}
}

func (m *Monitor) TransferStarted(id, name string, packets uint64) {
	m.uploadsStarted.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[id] = &TransferStatus{
		ID:          id,
		Name:        name,
		State:       "idle",
		PacketCount: packets,
		Started:     time.Now(),
	}
	m.order = append(m.order, id)
	m.trimLocked()
}

func (m *Monitor) TransferState(id, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transfers[id]; ok {
		t.State = state
	}
}

func (m *Monitor) PacketSent(id string, pkt uint64, frameBytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transfers[id]; ok {
		t.PacketsSent = pkt
		t.BytesSent += int64(frameBytes)
	}
}

func (m *Monitor) TransferFinished(id string, err error) {
	if err != nil {
		m.uploadsFailed.Add(1)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return
	}
	now := time.Now()
	t.Finished = &now
	if err != nil {
		t.Error = err.Error()
	}
}

// Transfers returns copies of the tracked transfers, oldest first.
func (m *Monitor) Transfers() []TransferStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransferStatus, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.transfers[id])
	}
	return out
}

// Transfer returns one transfer by id.
func (m *Monitor) Transfer(id string) (TransferStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return TransferStatus{}, false
	}
	return *t, true
}

func (m *Monitor) Counters() Counters {
	c := Counters{
		CommandsSent:   m.commandsSent.Load(),
		CommandsFailed: m.commandsFailed.Load(),
		UploadsStarted: m.uploadsStarted.Load(),
		UploadsFailed:  m.uploadsFailed.Load(),
	}
	m.mu.Lock()
	l := m.limiter
	m.mu.Unlock()
	if l != nil {
		c.ActiveRateBytes = l.GetActiveRate()
	}
	return c
}

// trimLocked drops the oldest finished transfers beyond maxHistory.
func (m *Monitor) trimLocked() {
	for len(m.order) > maxHistory {
		oldest := m.order[0]
		if m.transfers[oldest].Finished == nil {
			return
		}
		delete(m.transfers, oldest)
		m.order = m.order[1:]
	}
}
