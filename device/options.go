package device

import (
	"github.com/juju/ratelimit"
	"go.uber.org/zap"

	"propctl/connections"
	"propctl/limiter"
)

// Reporter receives progress of commands and uploads. *status.Monitor
// implements it.
type Reporter interface {
	CommandSent(name string, err error)
	TransferStarted(id, name string, packets uint64)
	TransferState(id, state string)
	PacketSent(id string, pkt uint64, frameBytes int)
	TransferFinished(id string, err error)
}

type nopReporter struct{}

func (nopReporter) CommandSent(string, error)            {}
func (nopReporter) TransferStarted(string, string, uint64) {}
func (nopReporter) TransferState(string, string)          {}
func (nopReporter) PacketSent(string, uint64, int)        {}
func (nopReporter) TransferFinished(string, error)        {}

// ProgressFunc is called after every data frame with the 1-based packet
// number and the packet count.
type ProgressFunc func(sent, total uint64)

type options struct {
	dialer   connections.ContextDialer
	logger   *zap.Logger
	clock    ratelimit.Clock
	reporter Reporter
	progress ProgressFunc
	limiter  *limiter.SharedLimiter
}

// Option customises a Session or a Sender.
type Option func(*options)

// WithDialer replaces the TCP dialer, e.g. to reach a fake device.
func WithDialer(d connections.ContextDialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the clock used for inter-packet pacing.
func WithClock(c ratelimit.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithLimiter routes data channel traffic through a bandwidth limiter.
func WithLimiter(l *limiter.SharedLimiter) Option {
	return func(o *options) { o.limiter = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.reporter == nil {
		o.reporter = nopReporter{}
	}
	if o.clock == nil {
		o.clock = limiter.RealClock()
	}
	return o
}
