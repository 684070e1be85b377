// Package config loads pipeline descriptions from YAML and holds defaults
// of the UDP receiver.
package config

import (
	"bytes"
	"io"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dudk/vidpipe"
)

// Receiver defaults.
const (
	DefaultPort = 9000
	DefaultCaps = "application/x-rtp, media=video, clock-rate=90000, encoding-name=H264, payload=96"
	DefaultSink = "xvimagesink"
)

// Environment variables which override receiver defaults.
const (
	EnvPort = "VIDPIPE_PORT"
	EnvCaps = "VIDPIPE_CAPS"
	EnvSink = "VIDPIPE_SINK"
	EnvSync = "VIDPIPE_SYNC"
)

// ErrConfig is returned when pipeline description is invalid.
var ErrConfig = errors.New("invalid pipeline config")

// Pipeline describes pipeline either with launch line or with list of elements.
type Pipeline struct {
	Name     string                `yaml:"name"`
	Launch   string                `yaml:"launch,omitempty"`
	Elements []vidpipe.ElementSpec `yaml:"elements,omitempty"`
}

// Load reads pipeline description from YAML file.
func Load(path string) (Pipeline, error) {
	path = filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return Pipeline{}, errors.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Pipeline{}, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes pipeline description. Unknown fields are rejected.
func Parse(data []byte) (Pipeline, error) {
	var c Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return Pipeline{}, errors.Wrap(ErrConfig, "empty document")
		}
		return Pipeline{}, errors.Wrapf(ErrConfig, "parse: %v", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Pipeline{}, errors.Wrap(ErrConfig, "multiple documents or trailing content")
	}
	if err := c.Validate(); err != nil {
		return Pipeline{}, err
	}
	return c, nil
}

// Validate checks that exactly one of launch or elements is set and every
// element has a factory.
func (c Pipeline) Validate() error {
	switch {
	case c.Launch != "" && len(c.Elements) > 0:
		return errors.Wrap(ErrConfig, "both launch and elements are set")
	case c.Launch == "" && len(c.Elements) == 0:
		return errors.Wrap(ErrConfig, "neither launch nor elements are set")
	}
	for i, e := range c.Elements {
		if e.Factory == "" {
			return errors.Wrapf(ErrConfig, "element %d has no factory", i)
		}
	}
	return nil
}

// Specs returns element specs, launch line is parsed if set.
func (c Pipeline) Specs() ([]vidpipe.ElementSpec, error) {
	if c.Launch != "" {
		return vidpipe.ParseLaunch(c.Launch)
	}
	return c.Elements, nil
}

// Build makes pipeline from description.
func (c Pipeline) Build(options ...vidpipe.Option) (*vidpipe.Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	specs, err := c.Specs()
	if err != nil {
		return nil, err
	}
	name := c.Name
	if name == "" {
		name = "pipeline"
	}
	return vidpipe.Build(name, specs, options...)
}

// Marshal encodes description as YAML.
func (c Pipeline) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Receiver holds options of the UDP RTP/H.264 receiver.
type Receiver struct {
	Port int
	Caps string
	Sink string
	Sync bool
	// Output is a file to write access units to instead of rendering.
	Output string
}

// DefaultReceiver returns receiver with default options.
func DefaultReceiver() Receiver {
	return Receiver{
		Port: DefaultPort,
		Caps: DefaultCaps,
		Sink: DefaultSink,
	}
}

// ReceiverFromEnv returns default receiver with overrides from environment.
func ReceiverFromEnv(lookup func(string) (string, bool)) (Receiver, error) {
	r := DefaultReceiver()
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return r, errors.Wrapf(ErrConfig, "%s=%q is not a port", EnvPort, v)
		}
		r.Port = port
	}
	if v, ok := lookup(EnvCaps); ok {
		if _, err := vidpipe.ParseCaps(v); err != nil {
			return r, errors.Wrapf(ErrConfig, "%s: %v", EnvCaps, err)
		}
		r.Caps = v
	}
	if v, ok := lookup(EnvSink); ok && v != "" {
		r.Sink = v
	}
	if v, ok := lookup(EnvSync); ok {
		sync, err := strconv.ParseBool(v)
		if err != nil {
			return r, errors.Wrapf(ErrConfig, "%s=%q is not a boolean", EnvSync, v)
		}
		r.Sync = sync
	}
	return r, nil
}

// Pipeline returns description of receiving pipeline:
//
//	udpsrc ! rtph264depay ! avdec_h264 ! sink
//
// With output set, access units are written to file without decoding.
func (r Receiver) Pipeline() Pipeline {
	elements := []vidpipe.ElementSpec{
		{
			Factory: "udpsrc",
			Name:    "source",
			Properties: map[string]interface{}{
				"port": r.Port,
				"caps": r.Caps,
			},
		},
		{Factory: "rtph264depay", Name: "depay"},
	}
	if r.Output != "" {
		elements = append(elements, vidpipe.ElementSpec{
			Factory:    "filesink",
			Name:       "sink",
			Properties: map[string]interface{}{"location": r.Output},
		})
	} else {
		elements = append(elements,
			vidpipe.ElementSpec{Factory: "avdec_h264", Name: "decoder"},
			vidpipe.ElementSpec{
				Factory:    r.Sink,
				Name:       "sink",
				Properties: map[string]interface{}{"sync": r.Sync},
			},
		)
	}
	return Pipeline{Name: "receiver", Elements: elements}
}
