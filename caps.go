package vidpipe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AnyCaps matches every other caps.
const AnyCaps = "ANY"

// Caps describes the media format an element produces or accepts.
// It is parsed from strings like:
//
//	application/x-rtp, media=(string)video, clock-rate=(int)90000
//
// Untyped values are inferred: integers, then booleans, then strings.
type Caps struct {
	MediaType string
	Fields    []Field
}

// Field is a single typed caps field.
type Field struct {
	Name  string
	Value interface{}
}

// ErrCaps is returned when caps string can't be parsed.
var ErrCaps = errors.New("invalid caps")

// Any returns caps which intersect with everything.
func Any() Caps {
	return Caps{MediaType: AnyCaps}
}

// ParseCaps parses caps string.
func ParseCaps(s string) (Caps, error) {
	parts, err := splitCaps(s)
	if err != nil {
		return Caps{}, err
	}
	if len(parts) == 0 || parts[0] == "" {
		return Caps{}, errors.Wrapf(ErrCaps, "%q: missing media type", s)
	}
	c := Caps{MediaType: parts[0]}
	if strings.ContainsAny(c.MediaType, "= ") {
		return Caps{}, errors.Wrapf(ErrCaps, "%q: bad media type %q", s, c.MediaType)
	}
	for _, part := range parts[1:] {
		f, err := parseField(part)
		if err != nil {
			return Caps{}, errors.Wrapf(err, "%q", s)
		}
		c = c.With(f.Name, f.Value)
	}
	return c, nil
}

// MustParseCaps is like ParseCaps but panics on error.
func MustParseCaps(s string) Caps {
	c, err := ParseCaps(s)
	if err != nil {
		panic(err)
	}
	return c
}

// splitCaps splits caps by commas which are not quoted.
func splitCaps(s string) ([]string, error) {
	var (
		parts  []string
		b      strings.Builder
		quoted bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case r == ',' && !quoted:
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if quoted {
		return nil, errors.Wrapf(ErrCaps, "%q: unterminated quote", s)
	}
	parts = append(parts, strings.TrimSpace(b.String()))
	return parts, nil
}

func parseField(s string) (Field, error) {
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return Field{}, errors.Wrapf(ErrCaps, "field %q", s)
	}
	name := strings.TrimSpace(s[:i])
	raw := strings.TrimSpace(s[i+1:])
	typ := ""
	if strings.HasPrefix(raw, "(") {
		j := strings.IndexByte(raw, ')')
		if j < 0 {
			return Field{}, errors.Wrapf(ErrCaps, "field %q: unterminated type", s)
		}
		typ = raw[1:j]
		raw = strings.TrimSpace(raw[j+1:])
	}
	raw = strings.Trim(raw, `"`)
	v, err := typedValue(typ, raw)
	if err != nil {
		return Field{}, errors.Wrapf(ErrCaps, "field %q: %v", s, err)
	}
	return Field{Name: name, Value: v}, nil
}

func typedValue(typ, raw string) (interface{}, error) {
	switch typ {
	case "int", "i":
		return strconv.Atoi(raw)
	case "boolean", "bool", "b":
		return strconv.ParseBool(raw)
	case "string", "s":
		return raw, nil
	case "":
		if v, err := strconv.Atoi(raw); err == nil {
			return v, nil
		}
		if raw == "true" || raw == "false" {
			return raw == "true", nil
		}
		return raw, nil
	}
	return nil, fmt.Errorf("unsupported type %q", typ)
}

// With returns a copy of caps with field set.
func (c Caps) With(name string, value interface{}) Caps {
	fields := make([]Field, 0, len(c.Fields)+1)
	replaced := false
	for _, f := range c.Fields {
		if f.Name == name {
			f.Value = value
			replaced = true
		}
		fields = append(fields, f)
	}
	if !replaced {
		fields = append(fields, Field{Name: name, Value: value})
	}
	return Caps{MediaType: c.MediaType, Fields: fields}
}

// Get returns value of the field.
func (c Caps) Get(name string) (interface{}, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Int returns integer field value.
func (c Caps) Int(name string) (int, bool) {
	v, ok := c.Get(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

// Str returns string field value.
func (c Caps) Str(name string) (string, bool) {
	v, ok := c.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IsAny reports if caps match any format.
func (c Caps) IsAny() bool {
	return c.MediaType == "" || c.MediaType == AnyCaps
}

// CanIntersect reports if two caps describe compatible formats.
func (c Caps) CanIntersect(o Caps) bool {
	if c.IsAny() || o.IsAny() {
		return true
	}
	if !matchMediaType(c.MediaType, o.MediaType) {
		return false
	}
	for _, f := range c.Fields {
		if v, ok := o.Get(f.Name); ok && v != f.Value {
			return false
		}
	}
	return true
}

func matchMediaType(a, b string) bool {
	if a == b {
		return true
	}
	return wildcard(a, b) || wildcard(b, a)
}

// wildcard reports if pattern like "video/*" matches media type.
func wildcard(pattern, mediaType string) bool {
	if !strings.HasSuffix(pattern, "/*") {
		return false
	}
	return strings.HasPrefix(mediaType, strings.TrimSuffix(pattern, "*"))
}

// Equal reports if caps have the same media type and fields, regardless of field order.
func (c Caps) Equal(o Caps) bool {
	if c.MediaType != o.MediaType || len(c.Fields) != len(o.Fields) {
		return false
	}
	for _, f := range c.Fields {
		if v, ok := o.Get(f.Name); !ok || v != f.Value {
			return false
		}
	}
	return true
}

// String returns caps in canonical typed form.
func (c Caps) String() string {
	if c.IsAny() {
		return AnyCaps
	}
	var b strings.Builder
	b.WriteString(c.MediaType)
	for _, f := range c.Fields {
		b.WriteString(", ")
		b.WriteString(f.Name)
		b.WriteString("=")
		switch v := f.Value.(type) {
		case int:
			fmt.Fprintf(&b, "(int)%d", v)
		case bool:
			fmt.Fprintf(&b, "(boolean)%t", v)
		case string:
			if strings.ContainsAny(v, ", ") {
				fmt.Fprintf(&b, "(string)%q", v)
			} else {
				fmt.Fprintf(&b, "(string)%s", v)
			}
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}
