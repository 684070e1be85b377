package vidpipe

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
)

// MessageType identifies kind of bus message. Types are bit flags
// so they can be combined into a mask.
type MessageType uint32

// Message types.
const (
	MessageError MessageType = 1 << iota
	MessageEOS
	MessageWarning
	MessageInfo
	MessageStateChanged
	MessageElement
	MessageApplication
	MessageDurationChanged
	MessageUnknown MessageType = 1 << 31

	// MessageAny matches all message types.
	MessageAny = ^MessageType(0)
)

var messageTypeNames = []struct {
	t    MessageType
	name string
}{
	{MessageError, "error"},
	{MessageEOS, "eos"},
	{MessageWarning, "warning"},
	{MessageInfo, "info"},
	{MessageStateChanged, "state-changed"},
	{MessageElement, "element"},
	{MessageApplication, "application"},
	{MessageDurationChanged, "duration-changed"},
	{MessageUnknown, "unknown"},
}

func (t MessageType) String() string {
	var names []string
	for _, n := range messageTypeNames {
		if t&n.t != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Message is an immutable event posted on the bus.
type Message struct {
	typ     MessageType
	seq     string
	src     string
	at      time.Time
	err     error
	debug   string
	text    string
	old     State
	new     State
	pending State
}

func newMessage(t MessageType, src string) Message {
	return Message{
		typ: t,
		seq: xid.New().String(),
		src: src,
		at:  time.Now(),
	}
}

// NewErrorMessage returns message which reports a fatal streaming error.
func NewErrorMessage(src string, err error, debug string) Message {
	m := newMessage(MessageError, src)
	m.err = err
	m.debug = debug
	return m
}

// NewWarningMessage returns message which reports a recoverable problem.
func NewWarningMessage(src string, err error, debug string) Message {
	m := newMessage(MessageWarning, src)
	m.err = err
	m.debug = debug
	return m
}

// NewInfoMessage returns informational message.
func NewInfoMessage(src, text string) Message {
	m := newMessage(MessageInfo, src)
	m.text = text
	return m
}

// NewEOSMessage returns end-of-stream message.
func NewEOSMessage(src string) Message {
	return newMessage(MessageEOS, src)
}

// NewStateChangedMessage returns message about state transition of src.
func NewStateChangedMessage(src string, old, new, pending State) Message {
	m := newMessage(MessageStateChanged, src)
	m.old, m.new, m.pending = old, new, pending
	return m
}

// NewElementMessage returns element-specific message identified by name.
func NewElementMessage(src, name string) Message {
	m := newMessage(MessageElement, src)
	m.text = name
	return m
}

// NewApplicationMessage returns message posted by application itself.
func NewApplicationMessage(src, name string) Message {
	m := newMessage(MessageApplication, src)
	m.text = name
	return m
}

// NewDurationChangedMessage notifies that duration should be queried again.
func NewDurationChangedMessage(src string) Message {
	return newMessage(MessageDurationChanged, src)
}

// NewUnknownMessage returns message of unknown type.
func NewUnknownMessage(src string) Message {
	return newMessage(MessageUnknown, src)
}

// Type returns message type.
func (m Message) Type() MessageType {
	return m.typ
}

// Seq returns unique message id.
func (m Message) Seq() string {
	return m.seq
}

// Source returns name of the object which posted the message.
func (m Message) Source() string {
	return m.src
}

// Time returns when message was created.
func (m Message) Time() time.Time {
	return m.at
}

// Err returns error of error and warning messages.
func (m Message) Err() error {
	return m.err
}

// Debug returns optional debug string of error and warning messages.
func (m Message) Debug() string {
	return m.debug
}

// ParseStateChanged returns states of state-changed message.
func (m Message) ParseStateChanged() (old, new, pending State) {
	return m.old, m.new, m.pending
}

// Text returns text of info, element and application messages.
func (m Message) Text() string {
	return m.text
}

// IsZero reports if message is empty.
func (m Message) IsZero() bool {
	return m.typ == 0
}

func (m Message) String() string {
	switch m.typ {
	case MessageError, MessageWarning:
		return fmt.Sprintf("%v from %s: %v", m.typ, m.src, m.err)
	case MessageStateChanged:
		return fmt.Sprintf("%v from %s: %v -> %v (pending %v)", m.typ, m.src, m.old, m.new, m.pending)
	case MessageInfo, MessageElement, MessageApplication:
		return fmt.Sprintf("%v from %s: %s", m.typ, m.src, m.text)
	}
	return fmt.Sprintf("%v from %s", m.typ, m.src)
}
