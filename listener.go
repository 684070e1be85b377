package vidpipe

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dudk/vidpipe/log"
)

// listener pops bus messages until error or end-of-stream.
type listener struct {
	mask    MessageType
	log     logrus.FieldLogger
	handler func(Message)
}

// ListenOption configures Listen.
type ListenOption func(*listener)

// ListenMask sets which messages are popped. Messages outside of the mask
// are dropped. Default mask is error and end-of-stream.
func ListenMask(mask MessageType) ListenOption {
	return func(l *listener) {
		l.mask = mask
	}
}

// ListenLogger sets logger for received messages. Silent logger is used by default.
func ListenLogger(logger logrus.FieldLogger) ListenOption {
	return func(l *listener) {
		l.log = logger
	}
}

// ListenHandler sets function which is called for every popped message
// before it's handled by listener.
func ListenHandler(fn func(Message)) ListenOption {
	return func(l *listener) {
		l.handler = fn
	}
}

// Listen blocks until error or end-of-stream message is popped from the bus
// or context is done. Other messages are logged and ignored. It returns the
// message which terminated listening.
func Listen(ctx context.Context, bus *Bus, options ...ListenOption) (Message, error) {
	l := listener{
		mask: MessageError | MessageEOS,
		log:  log.Silent(),
	}
	for _, option := range options {
		option(&l)
	}
	for {
		m, err := bus.Pop(ctx, l.mask)
		if err != nil {
			return Message{}, err
		}
		if l.handler != nil {
			l.handler(m)
		}
		if l.handle(m) {
			return m, nil
		}
	}
}

// handle logs message and reports if listening should be terminated.
func (l *listener) handle(m Message) bool {
	switch m.Type() {
	case MessageError:
		debug := m.Debug()
		if debug == "" {
			debug = "none"
		}
		l.log.WithField("element", m.Source()).Errorf("Error received from element %s: %v", m.Source(), m.Err())
		l.log.WithField("element", m.Source()).Errorf("Debugging information: %s", debug)
		return true
	case MessageEOS:
		l.log.Info("End-Of-Stream reached.")
		return true
	case MessageStateChanged:
		old, new, _ := m.ParseStateChanged()
		l.log.WithField("element", m.Source()).Debugf("State changed from %v to %v", old, new)
	default:
		l.log.WithField("type", m.Type().String()).Warn("Unexpected message received.")
	}
	return false
}
