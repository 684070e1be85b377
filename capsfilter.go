package vidpipe

// CapsFilterFactory is the name of caps filter factory.
const CapsFilterFactory = "capsfilter"

func init() {
	Register(CapsFilterFactory, func(name string) (Element, error) {
		return NewCapsFilter(name), nil
	})
}

// CapsFilter restricts format between two elements and stamps
// its caps on passing buffers.
type CapsFilter struct {
	Base
}

// NewCapsFilter returns caps filter which accepts any caps until caps property is set.
func NewCapsFilter(name string) *CapsFilter {
	return &CapsFilter{
		Base: NewBase(CapsFilterFactory, name,
			CapsProperty("caps", "Restrict the possible allowed capabilities"),
		),
	}
}

// SinkCaps returns filter caps.
func (f *CapsFilter) SinkCaps() Caps {
	return f.Properties().Caps("caps")
}

// SrcCaps returns filter caps.
func (f *CapsFilter) SrcCaps() Caps {
	return f.Properties().Caps("caps")
}

// Transform returns pass-through closure.
func (f *CapsFilter) Transform() (TransformFunc, error) {
	caps := f.Properties().Caps("caps")
	return func(b *Buffer) ([]*Buffer, error) {
		if !caps.IsAny() {
			b.Caps = caps
		}
		return []*Buffer{b}, nil
	}, nil
}
