package limiter

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/juju/ratelimit"
)

const numBuckets = 5 // 5 one-second buckets for 5-second window

// realClock is the wall clock used outside of tests.
type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the wall clock.
func RealClock() ratelimit.Clock { return realClock{} }

// Pacer enforces the fixed pause the fan needs between two data frames to
// drain its LED buffer. It is a hard interval, not a token budget.
type Pacer struct {
	interval time.Duration
	clock    ratelimit.Clock
}

func NewPacer(interval time.Duration, clock ratelimit.Clock) *Pacer {
	if clock == nil {
		clock = realClock{}
	}
	return &Pacer{interval: interval, clock: clock}
}

// Wait sleeps for the configured interval.
func (p *Pacer) Wait() {
	if p == nil || p.interval <= 0 {
		return
	}
	p.clock.Sleep(p.interval)
}

func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// throttledConn wraps net.Conn and applies a bandwidth limit on Read and Write
type throttledConn struct {
	net.Conn
	bucket  *ratelimit.Bucket
	limiter *SharedLimiter
}

func (t *throttledConn) Read(p []byte) (int, error) {
	n, err := t.Conn.Read(p)
	if n > 0 {
		if t.bucket != nil {
			t.bucket.Wait(int64(n))
		}
		if t.limiter != nil {
			t.limiter.recordBytes(int64(n))
		}
	}
	return n, err
}

func (t *throttledConn) Write(p []byte) (int, error) {
	if t.bucket != nil {
		t.bucket.Wait(int64(len(p)))
	}
	n, err := t.Conn.Write(p)
	if err == nil {
		if t.limiter != nil {
			t.limiter.recordBytes(int64(n))
		}
	}
	return n, err
}

// timeBucket holds bytes for a 1-second window
type timeBucket struct {
	bytes     int64 // atomic
	timestamp int64 // atomic, unix timestamp
}

// SharedLimiter caps the byte rate of wrapped connections and keeps a
// rolling 5 second view of the achieved rate. A non-positive rate only
// records statistics.
type SharedLimiter struct {
	bucket     *ratelimit.Bucket
	clock      ratelimit.Clock
	maxRate    int64
	buckets    [numBuckets]timeBucket
	currentIdx int64 // atomic, current bucket index
	lastRotate int64 // atomic, last rotation unix timestamp
	windowSize time.Duration
}

func NewSharedLimiter(bytesPerSec int64, clock ratelimit.Clock) *SharedLimiter {
	if clock == nil {
		clock = realClock{}
	}
	now := clock.Now().Unix()
	sl := &SharedLimiter{
		clock:      clock,
		maxRate:    bytesPerSec,
		windowSize: numBuckets * time.Second,
		lastRotate: now,
	}
	if bytesPerSec > 0 {
		sl.bucket = ratelimit.NewBucketWithRateAndClock(float64(bytesPerSec), bytesPerSec, clock)
	}
	for i := range sl.buckets {
		atomic.StoreInt64(&sl.buckets[i].timestamp, now)
	}
	return sl
}

// recordBytes records bytes transferred (lock-free, fast path)
func (l *SharedLimiter) recordBytes(n int64) {
	now := l.clock.Now().Unix()
	lastRotate := atomic.LoadInt64(&l.lastRotate)

	if now > lastRotate {
		if atomic.CompareAndSwapInt64(&l.lastRotate, lastRotate, now) {
			currentIdx := atomic.LoadInt64(&l.currentIdx)
			nextIdx := (currentIdx + 1) % numBuckets
			atomic.StoreInt64(&l.currentIdx, nextIdx)

			atomic.StoreInt64(&l.buckets[nextIdx].bytes, 0)
			atomic.StoreInt64(&l.buckets[nextIdx].timestamp, now)
		}
	}

	idx := atomic.LoadInt64(&l.currentIdx)
	atomic.AddInt64(&l.buckets[idx].bytes, n)
}

// WrapConn wraps a net.Conn so all reads/writes are limited
func (l *SharedLimiter) WrapConn(c net.Conn) net.Conn {
	return &throttledConn{Conn: c, bucket: l.bucket, limiter: l}
}

// GetActiveRate returns bytes per second over the rolling window.
func (l *SharedLimiter) GetActiveRate() int64 {
	now := l.clock.Now().Unix()
	cutoff := now - int64(l.windowSize.Seconds())

	var totalBytes int64
	var oldestTimestamp int64 = now

	for i := 0; i < numBuckets; i++ {
		ts := atomic.LoadInt64(&l.buckets[i].timestamp)
		if ts >= cutoff {
			totalBytes += atomic.LoadInt64(&l.buckets[i].bytes)
			if ts < oldestTimestamp {
				oldestTimestamp = ts
			}
		}
	}

	duration := now - oldestTimestamp
	if duration > 0 {
		return totalBytes / duration
	}
	return totalBytes
}

func (l *SharedLimiter) GetMaxRate() int64 {
	return l.maxRate
}
