// Package udp provides the udpsrc element which receives datagrams from UDP socket.
package udp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dudk/vidpipe"
)

// SourceFactory is the name of UDP source factory.
const SourceFactory = "udpsrc"

// Defaults of source properties.
const (
	DefaultPort    = 5004
	DefaultAddress = "0.0.0.0"
	DefaultMTU     = 1492
)

// maxDatagramSize is the largest UDP payload. Receive buffer is never
// smaller, so datagrams exceeding mtu are not truncated.
const maxDatagramSize = 65535

// pollInterval limits how long read blocks before context is checked.
const pollInterval = 50 * time.Millisecond

// ErrNotOpened is returned when streaming is started before socket is bound.
var ErrNotOpened = errors.New("udp: socket is not bound")

func init() {
	vidpipe.Register(SourceFactory, func(name string) (vidpipe.Element, error) {
		return NewSource(name), nil
	})
}

// Source receives datagrams and pushes each one as a buffer with
// configured caps. Socket is bound when element goes to Ready.
type Source struct {
	vidpipe.Base

	m    sync.Mutex
	conn *net.UDPConn
}

// NewSource returns source with default properties.
func NewSource(name string) *Source {
	return &Source{
		Base: vidpipe.NewBase(SourceFactory, name,
			vidpipe.IntProperty("port", DefaultPort, "The port to receive the packets from, 0=allocate"),
			vidpipe.StringProperty("address", DefaultAddress, "Address to receive packets from"),
			vidpipe.CapsProperty("caps", "The caps of the source pad"),
			vidpipe.IntProperty("mtu", DefaultMTU, "Maximum expected packet size, larger datagrams are received too"),
		),
	}
}

// SrcCaps returns caps property.
func (s *Source) SrcCaps() vidpipe.Caps {
	return s.Properties().Caps("caps")
}

// Open binds socket.
func (s *Source) Open() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.conn != nil {
		return nil
	}
	props := s.Properties()
	address := net.JoinHostPort(props.String("address"), strconv.Itoa(props.Int("port")))
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return errors.Wrapf(err, "resolve %v", address)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return errors.Wrapf(err, "bind %v", address)
	}
	s.conn = conn
	return nil
}

// Close releases socket.
func (s *Source) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// LocalAddr returns address socket is bound to or nil if it's not bound.
func (s *Source) LocalAddr() net.Addr {
	s.m.Lock()
	defer s.m.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Source returns closure which reads one datagram per call.
func (s *Source) Source() (vidpipe.SourceFunc, error) {
	s.m.Lock()
	conn := s.conn
	s.m.Unlock()
	if conn == nil {
		return nil, ErrNotOpened
	}
	caps := s.Properties().Caps("caps")
	size := s.Properties().Int("mtu")
	if size < maxDatagramSize {
		size = maxDatagramSize
	}
	packet := make([]byte, size)
	return func(ctx context.Context) (*vidpipe.Buffer, error) {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
				return nil, errors.Wrap(err, "set deadline")
			}
			n, _, err := conn.ReadFromUDP(packet)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				return nil, errors.Wrap(err, "receive")
			}
			data := make([]byte, n)
			copy(data, packet[:n])
			b := vidpipe.NewBuffer(data)
			b.Caps = caps
			return b, nil
		}
	}, nil
}
