package vidpipe

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// Kind is a type of property value.
type Kind int

// Property kinds.
const (
	KindInt Kind = iota
	KindBool
	KindString
	KindCaps
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindCaps:
		return "caps"
	}
	return "unknown"
}

// PropertySpec declares a property of element.
type PropertySpec struct {
	Name    string
	Kind    Kind
	Default interface{}
	Blurb   string
}

// IntProperty declares integer property.
func IntProperty(name string, def int, blurb string) PropertySpec {
	return PropertySpec{Name: name, Kind: KindInt, Default: def, Blurb: blurb}
}

// BoolProperty declares boolean property.
func BoolProperty(name string, def bool, blurb string) PropertySpec {
	return PropertySpec{Name: name, Kind: KindBool, Default: def, Blurb: blurb}
}

// StringProperty declares string property.
func StringProperty(name string, def string, blurb string) PropertySpec {
	return PropertySpec{Name: name, Kind: KindString, Default: def, Blurb: blurb}
}

// CapsProperty declares caps property. Default is ANY.
func CapsProperty(name string, blurb string) PropertySpec {
	return PropertySpec{Name: name, Kind: KindCaps, Default: Any(), Blurb: blurb}
}

var (
	// ErrNoProperty is returned when element has no property with requested name.
	ErrNoProperty = errors.New("no such property")
	// ErrPropertyType is returned when property value has wrong type.
	ErrPropertyType = errors.New("wrong property type")
)

// Properties is a set of typed key/value element properties.
// It's safe for concurrent use.
type Properties struct {
	m      sync.RWMutex
	specs  []PropertySpec
	values map[string]interface{}
}

// NewProperties returns properties initialised with default values.
func NewProperties(specs ...PropertySpec) *Properties {
	p := &Properties{
		specs:  specs,
		values: make(map[string]interface{}, len(specs)),
	}
	for _, s := range specs {
		p.values[s.Name] = s.Default
	}
	return p
}

// Specs returns declared properties.
func (p *Properties) Specs() []PropertySpec {
	return append([]PropertySpec(nil), p.specs...)
}

// Has reports if property is declared.
func (p *Properties) Has(name string) bool {
	_, ok := p.spec(name)
	return ok
}

func (p *Properties) spec(name string) (PropertySpec, bool) {
	for _, s := range p.specs {
		if s.Name == name {
			return s, true
		}
	}
	return PropertySpec{}, false
}

// Set converts value to the property kind and assigns it.
func (p *Properties) Set(name string, value interface{}) error {
	s, ok := p.spec(name)
	if !ok {
		return errors.Wrapf(ErrNoProperty, "%q", name)
	}
	v, err := convert(s.Kind, value)
	if err != nil {
		return errors.Wrapf(err, "property %q", name)
	}
	p.m.Lock()
	p.values[name] = v
	p.m.Unlock()
	return nil
}

// Get returns property value.
func (p *Properties) Get(name string) (interface{}, bool) {
	p.m.RLock()
	defer p.m.RUnlock()
	v, ok := p.values[name]
	return v, ok
}

// Int returns integer property value or zero.
func (p *Properties) Int(name string) int {
	v, _ := p.Get(name)
	i, _ := v.(int)
	return i
}

// Bool returns boolean property value or false.
func (p *Properties) Bool(name string) bool {
	v, _ := p.Get(name)
	b, _ := v.(bool)
	return b
}

// String returns string property value or empty string.
func (p *Properties) String(name string) string {
	v, _ := p.Get(name)
	s, _ := v.(string)
	return s
}

// Caps returns caps property value or ANY.
func (p *Properties) Caps(name string) Caps {
	v, _ := p.Get(name)
	c, ok := v.(Caps)
	if !ok {
		return Any()
	}
	return c
}

func convert(k Kind, value interface{}) (interface{}, error) {
	switch k {
	case KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int32:
			return int(v), nil
		case int64:
			return int(v), nil
		case uint:
			return int(v), nil
		case uint16:
			return int(v), nil
		case uint32:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
		case string:
			i, err := strconv.Atoi(v)
			if err == nil {
				return i, nil
			}
		}
	case KindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err == nil {
				return b, nil
			}
		}
	case KindString:
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		}
	case KindCaps:
		switch v := value.(type) {
		case Caps:
			return v, nil
		case string:
			return ParseCaps(v)
		}
	}
	return nil, errors.Wrapf(ErrPropertyType, "%T is not %v", value, k)
}
