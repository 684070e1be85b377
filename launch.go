package vidpipe

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ErrSyntax is returned when launch description can't be parsed.
var ErrSyntax = errors.New("syntax error")

// ParseLaunch parses pipeline description in gst-launch syntax:
//
//	udpsrc port=9000 caps="application/x-rtp, media=video" ! rtph264depay ! avdec_h264 ! xvimagesink sync=false
//
// Bare caps between links, like "! video/x-h264 !", become capsfilter elements.
func ParseLaunch(description string) ([]ElementSpec, error) {
	segments, err := splitQuoted(description, func(r rune) bool { return r == '!' })
	if err != nil {
		return nil, err
	}
	specs := make([]ElementSpec, 0, len(segments))
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return nil, errors.Wrapf(ErrSyntax, "empty element in %q", description)
		}
		spec, err := parseElement(segment)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// BuildLaunch parses description and builds pipeline of it.
func BuildLaunch(name, description string, options ...Option) (*Pipeline, error) {
	specs, err := ParseLaunch(description)
	if err != nil {
		return nil, err
	}
	return Build(name, specs, options...)
}

func parseElement(segment string) (ElementSpec, error) {
	tokens, err := splitQuoted(segment, unicode.IsSpace)
	if err != nil {
		return ElementSpec{}, err
	}
	tokens = nonEmpty(tokens)
	factory := tokens[0]
	if strings.Contains(factory, "/") && !strings.Contains(factory, "=") {
		if _, err := ParseCaps(segment); err != nil {
			return ElementSpec{}, errors.Wrapf(ErrSyntax, "caps %q: %v", segment, err)
		}
		return ElementSpec{
			Factory:    CapsFilterFactory,
			Properties: map[string]interface{}{"caps": segment},
		}, nil
	}
	spec := ElementSpec{Factory: factory}
	for _, token := range tokens[1:] {
		i := strings.IndexByte(token, '=')
		if i <= 0 {
			return ElementSpec{}, errors.Wrapf(ErrSyntax, "property %q of %q", token, factory)
		}
		key, value := token[:i], unquote(token[i+1:])
		if key == "name" {
			spec.Name = value
			continue
		}
		if spec.Properties == nil {
			spec.Properties = make(map[string]interface{})
		}
		spec.Properties[key] = value
	}
	return spec, nil
}

// splitQuoted splits s by separator runes which are not inside double quotes.
func splitQuoted(s string, sep func(rune) bool) ([]string, error) {
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
		case sep(r) && !quoted:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if quoted {
		return nil, errors.Wrapf(ErrSyntax, "unterminated quote in %q", s)
	}
	return append(parts, b.String()), nil
}

func nonEmpty(tokens []string) []string {
	result := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
