// Package devicesim is a stand-in for the propeller display. It accepts
// command and data connections and records what a client sent, following
// the documented wire behaviour. Tests use it as a fake peer and
// `propctl simulate` exposes it for manual runs.
package devicesim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"propctl/protocol"
)

// SamplePlaylistReply is what the simulator answers to read_playlist.
var SamplePlaylistReply = []byte("c30c38abc0003a4a8c2e3")

// Config controls the simulated device. Zero values give a well behaved
// device listening on ephemeral loopback ports.
type Config struct {
	CommandAddr string
	DataAddr    string
	PacketSize  int

	// ReadyReply is sent after an announce. nil sends protocol.ReadyAck,
	// an empty slice sends nothing.
	ReadyReply []byte
	// PlaylistReply answers read_playlist. nil sends SamplePlaylistReply.
	PlaylistReply []byte
	// Stale is written as soon as a connection is accepted.
	Stale []byte

	IdleTimeout time.Duration
	Logger      *zap.Logger
}

// Upload is everything received on one data connection.
type Upload struct {
	Announce   *protocol.Announce
	Payloads   [][]byte
	Terminated bool
	Err        error
}

// Simulator is a running fake device.
type Simulator struct {
	cfg    Config
	log    *zap.Logger
	cmdLn  net.Listener
	dataLn net.Listener
	g      *errgroup.Group
	cancel context.CancelFunc

	mu       sync.Mutex
	commands [][]byte
	cmdConns int
	active   map[net.Conn]struct{}

	uploads chan Upload
}

// Start listens on both ports and serves until ctx is done or Close is
// called.
func Start(ctx context.Context, cfg Config) (*Simulator, error) {
	if cfg.CommandAddr == "" {
		cfg.CommandAddr = "127.0.0.1:0"
	}
	if cfg.DataAddr == "" {
		cfg.DataAddr = "127.0.0.1:0"
	}
	if cfg.PacketSize == 0 {
		cfg.PacketSize = protocol.DefaultPacketSize
	}
	if cfg.PacketSize <= protocol.PacketHeaderLen+protocol.PacketTrailerLen {
		return nil, fmt.Errorf("packet size %d too small", cfg.PacketSize)
	}
	if cfg.ReadyReply == nil {
		cfg.ReadyReply = protocol.ReadyAck
	}
	if cfg.PlaylistReply == nil {
		cfg.PlaylistReply = SamplePlaylistReply
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cmdLn, err := net.Listen("tcp", cfg.CommandAddr)
	if err != nil {
		return nil, fmt.Errorf("listen command %s: %w", cfg.CommandAddr, err)
	}
	dataLn, err := net.Listen("tcp", cfg.DataAddr)
	if err != nil {
		cmdLn.Close()
		return nil, fmt.Errorf("listen data %s: %w", cfg.DataAddr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	s := &Simulator{
		cfg:     cfg,
		log:     cfg.Logger,
		cmdLn:   cmdLn,
		dataLn:  dataLn,
		g:       g,
		cancel:  cancel,
		active:  make(map[net.Conn]struct{}),
		uploads: make(chan Upload, 64),
	}

	g.Go(func() error { return s.acceptLoop(cmdLn, s.handleCommand) })
	g.Go(func() error { return s.acceptLoop(dataLn, s.handleData) })
	g.Go(func() error {
		<-ctx.Done()
		cmdLn.Close()
		dataLn.Close()
		s.closeActive()
		return nil
	})

	s.log.Info("SIM: listening",
		zap.String("command", cmdLn.Addr().String()),
		zap.String("data", dataLn.Addr().String()))
	return s, nil
}

func (s *Simulator) CommandAddr() string { return s.cmdLn.Addr().String() }
func (s *Simulator) DataAddr() string    { return s.dataLn.Addr().String() }

// CommandPort and DataPort return the bound TCP ports.
func (s *Simulator) CommandPort() int { return portOf(s.cmdLn.Addr()) }
func (s *Simulator) DataPort() int    { return portOf(s.dataLn.Addr()) }

// Commands returns every opcode received so far, in order.
func (s *Simulator) Commands() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.commands))
	copy(out, s.commands)
	return out
}

// CommandConns is the number of accepted command connections.
func (s *Simulator) CommandConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmdConns
}

// NextUpload waits for the next data connection to end.
func (s *Simulator) NextUpload(timeout time.Duration) (Upload, error) {
	select {
	case u := <-s.uploads:
		return u, nil
	case <-time.After(timeout):
		return Upload{}, errors.New("no upload finished in time")
	}
}

// Wait blocks until the simulator stops.
func (s *Simulator) Wait() error {
	return s.g.Wait()
}

// Close stops listening, drops open connections and waits for handlers.
func (s *Simulator) Close() error {
	s.cancel()
	return s.g.Wait()
}

func (s *Simulator) acceptLoop(ln net.Listener, handle func(net.Conn)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.g.Go(func() error {
			defer s.untrack(conn)
			handle(conn)
			return nil
		})
	}
}

func (s *Simulator) handleCommand(conn net.Conn) {
	s.mu.Lock()
	s.cmdConns++
	s.mu.Unlock()
	s.writeStale(conn)

	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	n, err := conn.Read(buf)
	if n == 0 {
		s.log.Debug("SIM: command connection closed without opcode", zap.Error(err))
		return
	}
	op := bytes.Clone(buf[:n])
	s.mu.Lock()
	s.commands = append(s.commands, op)
	s.mu.Unlock()
	s.log.Info("SIM: command", zap.ByteString("opcode", op))

	if rp, _ := protocol.Lookup("read_playlist"); bytes.Equal(op, rp.Bytes) {
		if _, err := conn.Write(s.cfg.PlaylistReply); err != nil {
			s.log.Debug("SIM: reply failed", zap.Error(err))
		}
	}
	io.Copy(io.Discard, conn)
}

func (s *Simulator) handleData(conn net.Conn) {
	up := Upload{}
	defer func() {
		s.log.Info("SIM: upload ended",
			zap.Int("frames", len(up.Payloads)),
			zap.Bool("terminated", up.Terminated),
			zap.Error(up.Err))
		select {
		case s.uploads <- up:
		default:
			s.log.Warn("SIM: upload record dropped, nobody is reading")
		}
	}()
	s.writeStale(conn)

	conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	ann, err := protocol.DecodeAnnounce(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			up.Err = err
		}
		return
	}
	up.Announce = ann
	s.log.Info("SIM: announce", zap.ByteString("name", ann.Name), zap.Uint32("total", ann.TotalLength))
	if len(s.cfg.ReadyReply) > 0 {
		if _, err := conn.Write(s.cfg.ReadyReply); err != nil {
			up.Err = err
			return
		}
	}

	chunk := s.cfg.PacketSize - protocol.PacketHeaderLen - protocol.PacketTrailerLen
	hdr := make([]byte, protocol.PacketHeaderLen)
	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		if _, err := io.ReadFull(conn, hdr); err != nil {
			if !errors.Is(err, io.EOF) {
				up.Err = err
			}
			return
		}
		switch {
		case bytes.Equal(hdr, protocol.PacketHeader):
			frame := make([]byte, protocol.DataFrameSize(chunk))
			copy(frame, hdr)
			if _, err := io.ReadFull(conn, frame[len(hdr):]); err != nil {
				up.Err = err
				return
			}
			payload, err := protocol.DecodeDataFrame(frame)
			if err != nil {
				up.Err = err
				return
			}
			up.Payloads = append(up.Payloads, payload)
		case bytes.Equal(hdr, protocol.TransferEnd[:len(hdr)]):
			rest := make([]byte, len(protocol.TransferEnd)-len(hdr))
			if _, err := io.ReadFull(conn, rest); err != nil {
				up.Err = err
				return
			}
			if !bytes.Equal(rest, protocol.TransferEnd[len(hdr):]) {
				up.Err = protocol.ErrBadTrailer
				return
			}
			up.Terminated = true
		default:
			up.Err = fmt.Errorf("%w: %q", protocol.ErrBadHeader, hdr)
			return
		}
	}
}

func (s *Simulator) writeStale(conn net.Conn) {
	if len(s.cfg.Stale) == 0 {
		return
	}
	if _, err := conn.Write(s.cfg.Stale); err != nil {
		s.log.Debug("SIM: stale write failed", zap.Error(err))
	}
}

func (s *Simulator) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return false
	}
	s.active[conn] = struct{}{}
	return true
}

func (s *Simulator) untrack(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		delete(s.active, conn)
	}
}

func (s *Simulator) closeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.active {
		c.Close()
	}
	s.active = nil
}

func portOf(addr net.Addr) int {
	_, p, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
