package connections

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// ContextDialer is satisfied by *net.Dialer.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDialer returns a TCP dialer with a bounded connect time. If an
// interface name is given the socket is bound to it before connecting,
// which keeps traffic on the fan's access point when the host has several
// uplinks. Binding is only supported on Linux.
func NewDialer(timeout time.Duration, interfaceName string) *net.Dialer {
	d := &net.Dialer{Timeout: timeout}
	if interfaceName != "" {
		d.Control = func(network, address string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = bindToDevice(fd, interfaceName)
			}); err != nil {
				return err
			}
			return serr
		}
	}
	return d
}

// Drain performs a single read bounded by timeout and returns whatever
// arrived. Stale bytes may or may not be observed depending on peer timing.
// A timeout or EOF is not an error. The read deadline is cleared before
// returning.
func Drain(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil && !IsTimeout(err) && !errors.Is(err, io.EOF) {
		return buf[:n], err
	}
	return buf[:n], nil
}

// Shutdown closes both directions of a TCP connection and then the socket.
// Shutdown errors are ignored; the close error is returned.
func Shutdown(conn net.Conn) error {
	if conn == nil {
		return nil
	}
	type halfCloser interface {
		CloseRead() error
		CloseWrite() error
	}
	if hc, ok := conn.(halfCloser); ok {
		_ = hc.CloseWrite()
		_ = hc.CloseRead()
	}
	return conn.Close()
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
