package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"propctl/config"
	"propctl/connections"
	"propctl/limiter"
	"propctl/planner"
	"propctl/protocol"
)

// Session uploads one image over the data channel. A session is single
// use; to retry, start a new one.
type Session struct {
	cfg   config.DeviceConfig
	opts  options
	pacer *limiter.Pacer
	log   *zap.Logger

	id    string
	state State
	plan  planner.TransferPlan
}

func NewSession(cfg config.DeviceConfig, opts ...Option) *Session {
	o := buildOptions(opts)
	if o.dialer == nil {
		o.dialer = connections.NewDialer(cfg.ConnectTimeout.Duration(), cfg.InterfaceName)
	}
	id := uuid.NewString()
	return &Session{
		cfg:   cfg,
		opts:  o,
		pacer: limiter.NewPacer(cfg.InterPacketDelay.Duration(), o.clock),
		log:   o.logger.With(zap.String("transfer", id)),
		id:    id,
		state: StateIdle,
	}
}

func (s *Session) ID() string                 { return s.id }
func (s *Session) State() State               { return s.state }
func (s *Session) Plan() planner.TransferPlan { return s.plan }

// UploadFile uploads the file at path under its base name.
func (s *Session) UploadFile(ctx context.Context, path string) error {
	if _, err := ValidateFilename(path); err != nil {
		s.setState(StateFailed)
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return s.Upload(ctx, path, st.Size(), f)
}

// Upload announces size bytes under the base name of name and streams src
// to the device.
func (s *Session) Upload(ctx context.Context, name string, size int64, src io.Reader) (err error) {
	if s.state != StateIdle {
		return fmt.Errorf("session %s already used (state %s)", s.id, s.state)
	}
	name, err = ValidateFilename(name)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	if size < 0 {
		s.setState(StateFailed)
		return fmt.Errorf("negative size %d", size)
	}
	s.plan, err = planner.Plan(uint64(size), uint32(s.cfg.PacketSize), protocol.PacketHeaderLen, protocol.PacketTrailerLen)
	if err != nil {
		s.setState(StateFailed)
		return err
	}

	s.opts.reporter.TransferStarted(s.id, name, s.plan.PacketCount)
	s.log.Info("UPLOAD: starting",
		zap.String("file", name),
		zap.String("addr", s.cfg.DataAddr()),
		zap.Duration("delay", s.pacer.Interval()),
		zap.Uint64("fsize", s.plan.FileSize),
		zap.Uint32("chunksize", s.plan.ChunkPayloadSize),
		zap.Uint64("npackets", s.plan.PacketCount),
		zap.Uint32("padsize", s.plan.PadSize))

	var raw net.Conn
	defer func() {
		if raw != nil {
			if cerr := connections.Shutdown(raw); cerr != nil {
				s.log.Debug("UPLOAD: close", zap.Error(cerr))
			}
		}
		if err != nil {
			s.setState(StateFailed)
			s.log.Error("UPLOAD: failed", zap.Error(err))
		} else {
			s.setState(StateClosed)
			s.log.Info("UPLOAD: complete", zap.Uint64("packets", s.plan.PacketCount))
		}
		s.opts.reporter.TransferFinished(s.id, err)
	}()

	raw, err = s.opts.dialer.DialContext(ctx, "tcp", s.cfg.DataAddr())
	if err != nil {
		raw = nil
		return &ConnectionError{Op: "connect", Addr: s.cfg.DataAddr(), Err: err}
	}
	conn := raw
	if s.opts.limiter != nil {
		conn = s.opts.limiter.WrapConn(raw)
	}
	s.setState(StateConnected)

	if err = s.announce(conn, name); err != nil {
		return err
	}
	if err = s.sendChunks(ctx, conn, src); err != nil {
		return err
	}
	return s.finalize(conn)
}

func (s *Session) announce(conn net.Conn, name string) error {
	s.drain(conn, s.cfg.DrainTimeout.Duration(), "connect")

	msg, err := protocol.EncodeAnnounceFrame(uint32(s.plan.TotalLength()), name)
	if err != nil {
		return &InvalidFilenameError{Name: name, Reason: err.Error()}
	}
	if err := s.write(conn, msg); err != nil {
		return &ConnectionError{Op: "announce", Addr: s.cfg.DataAddr(), Err: err}
	}

	reply, err := readReply(conn, s.cfg.AnnounceTimeout.Duration(), len(protocol.ReadyAck))
	if err != nil {
		return &ConnectionError{Op: "read ready ack", Addr: s.cfg.DataAddr(), Err: err}
	}
	if !protocol.IsReadyAck(reply) {
		return &DeviceNotReadyError{Received: reply}
	}
	s.log.Debug("UPLOAD: device ready", zap.String("reply", protocol.FormatBytes(reply)))
	s.setState(StateAnnounced)
	return nil
}

func (s *Session) sendChunks(ctx context.Context, conn net.Conn, src io.Reader) error {
	s.setState(StateUploading)

	chunk := int(s.plan.ChunkPayloadSize)
	buf := make([]byte, chunk)
	for pkt := uint64(1); pkt <= s.plan.PacketCount; pkt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(src, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read packet %d: %w", pkt, err)
		}
		if n < chunk {
			if !s.plan.IsLast(pkt) {
				return &TransferIntegrityError{
					Packet: pkt, Packets: s.plan.PacketCount,
					Expected: chunk, Actual: n,
					Reason: "short read before the last packet",
				}
			}
			if chunk-n != int(s.plan.PadSize) {
				return &TransferIntegrityError{
					Packet: pkt, Packets: s.plan.PacketCount,
					Expected: chunk - int(s.plan.PadSize), Actual: n,
					Reason: "final chunk size does not match the planned padding",
				}
			}
			s.log.Debug("UPLOAD: last packet", zap.Uint64("packet", pkt), zap.Int("padding", chunk-n))
			for i := n; i < chunk; i++ {
				buf[i] = protocol.PadByte
			}
		}

		frame := protocol.EncodeDataFrame(buf)
		if err := s.write(conn, frame); err != nil {
			return &ConnectionError{Op: fmt.Sprintf("send packet %d", pkt), Addr: s.cfg.DataAddr(), Err: err}
		}
		s.opts.reporter.PacketSent(s.id, pkt, len(frame))
		if s.opts.progress != nil {
			s.opts.progress(pkt, s.plan.PacketCount)
		}
		s.pacer.Wait()
	}
	return nil
}

func (s *Session) finalize(conn net.Conn) error {
	s.setState(StateFinalizing)
	s.drain(conn, s.cfg.FinalDrainTimeout.Duration(), "before terminator")
	if err := s.write(conn, protocol.TerminatorFrame()); err != nil {
		return &ConnectionError{Op: "send terminator", Addr: s.cfg.DataAddr(), Err: err}
	}
	s.drain(conn, s.cfg.FinalDrainTimeout.Duration(), "after terminator")
	return nil
}

// write sends b in full, bounded by the connect timeout.
func (s *Session) write(conn net.Conn, b []byte) error {
	if d := s.cfg.ConnectTimeout.Duration(); d > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
			return err
		}
		defer conn.SetWriteDeadline(time.Time{})
	}
	_, err := conn.Write(b)
	return err
}

func (s *Session) drain(conn net.Conn, timeout time.Duration, when string) {
	b, err := connections.Drain(conn, timeout)
	if err != nil {
		s.log.Debug("UPLOAD: drain failed", zap.String("when", when), zap.Error(err))
		return
	}
	if len(b) > 0 {
		s.log.Debug("UPLOAD: drained", zap.String("when", when), zap.String("recv", protocol.FormatBytes(b)))
	}
}

func (s *Session) setState(st State) {
	if s.state == st || s.state.Terminal() {
		return
	}
	s.log.Debug("UPLOAD: state", zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
	s.opts.reporter.TransferState(s.id, st.String())
}

// readReply collects at least want bytes (up to 1024) or whatever arrived
// before the deadline. Timeouts and EOF are not errors.
func readReply(conn net.Conn, timeout time.Duration, want int) ([]byte, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 1024)
	n, err := io.ReadAtLeast(conn, buf, want)
	if err != nil && !connections.IsTimeout(err) && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return buf[:n], err
	}
	return buf[:n], nil
}
