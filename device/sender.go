package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"propctl/config"
	"propctl/connections"
	"propctl/protocol"
)

var ErrUnknownCommand = errors.New("unknown command")

// Sender delivers single opcodes over the command channel. Every call uses
// its own connection; nothing is kept between calls.
type Sender struct {
	cfg  config.DeviceConfig
	opts options
}

func NewSender(cfg config.DeviceConfig, opts ...Option) *Sender {
	o := buildOptions(opts)
	if o.dialer == nil {
		o.dialer = connections.NewDialer(cfg.ConnectTimeout.Duration(), cfg.InterfaceName)
	}
	return &Sender{cfg: cfg, opts: o}
}

// SendNamed sends a catalogue opcode, reading a reply if the opcode has one.
func (s *Sender) SendNamed(ctx context.Context, name string) ([]byte, error) {
	op, ok := protocol.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, name)
	}
	return s.Send(ctx, op, op.ExpectReply)
}

// Send writes op to the command port. With expectReply it waits for one
// reply, bounded by ReplyTimeout when that is non-zero.
func (s *Sender) Send(ctx context.Context, op protocol.Opcode, expectReply bool) (reply []byte, err error) {
	addr := s.cfg.CommandAddr()
	log := s.opts.logger.With(zap.String("opcode", op.Name), zap.String("addr", addr))
	defer func() {
		s.opts.reporter.CommandSent(op.Name, err)
	}()

	conn, err := s.opts.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Addr: addr, Err: err}
	}
	defer conn.Close()

	stale, derr := connections.Drain(conn, s.cfg.DrainTimeout.Duration())
	if derr != nil {
		log.Debug("CMD: drain failed", zap.Error(derr))
	} else if len(stale) > 0 {
		log.Debug("CMD: drained", zap.String("recv", protocol.FormatBytes(stale)))
	}

	if _, err = conn.Write(op.Bytes); err != nil {
		return nil, &ConnectionError{Op: "send " + op.Name, Addr: addr, Err: err}
	}
	log.Info("CMD: bytes sent", zap.Int("len", len(op.Bytes)))
	if !expectReply {
		return nil, nil
	}

	if d := s.cfg.ReplyTimeout.Duration(); d > 0 {
		if err = conn.SetReadDeadline(time.Now().Add(d)); err != nil {
			return nil, &ConnectionError{Op: "read reply", Addr: addr, Err: err}
		}
	}
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, &ConnectionError{Op: "read reply", Addr: addr, Err: err}
	}
	log.Info("CMD: received reply", zap.Int("len", n))
	return buf[:n], nil
}
