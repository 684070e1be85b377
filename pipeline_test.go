package vidpipe_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder registers factory which remembers made elements.
type recorder struct {
	sources []*mock.Source
	sinks   []*mock.Sink
}

func newRecorder(t *testing.T) *recorder {
	r := &recorder{}
	prefix := strings.ToLower(t.Name())
	vidpipe.Register(prefix+"src", func(name string) (vidpipe.Element, error) {
		s := mock.NewSource(name)
		r.sources = append(r.sources, s)
		return s, nil
	})
	vidpipe.Register(prefix+"sink", func(name string) (vidpipe.Element, error) {
		s := mock.NewSink(name)
		r.sinks = append(r.sinks, s)
		return s, nil
	})
	return r
}

func mockSpecs(props map[string]interface{}) []vidpipe.ElementSpec {
	return []vidpipe.ElementSpec{
		{Factory: mock.SourceFactory, Name: "source", Properties: props},
		{Factory: mock.TransformFactory, Name: "transform"},
		{Factory: mock.SinkFactory, Name: "sink"},
	}
}

func buildMock(t *testing.T, props map[string]interface{}) (*vidpipe.Pipeline, *mock.Source, *mock.Sink) {
	t.Helper()
	p, err := vidpipe.Build("test", mockSpecs(props))
	require.NoError(t, err)
	src, ok := p.Element("source")
	require.True(t, ok)
	sink, ok := p.Element("sink")
	require.True(t, ok)
	return p, src.(*mock.Source), sink.(*mock.Sink)
}

func waitMessage(t *testing.T, p *vidpipe.Pipeline, mask vidpipe.MessageType) vidpipe.Message {
	t.Helper()
	m, ok := p.Bus().TimedPop(5*time.Second, mask)
	require.True(t, ok, "no %v message", mask)
	return m
}

func TestBuild(t *testing.T) {
	p, err := vidpipe.Build("build", mockSpecs(nil))
	require.NoError(t, err)
	defer p.Close()

	elements := p.Elements()
	assert.Equal(t, 3, len(elements))
	for i, name := range []string{"source", "transform", "sink"} {
		assert.Equal(t, name, elements[i].Name())
	}
	assert.Equal(t, vidpipe.Null, p.State())
	assert.Equal(t, "build", p.Name())
}

func TestBuildAutoNames(t *testing.T) {
	p, err := vidpipe.Build("", []vidpipe.ElementSpec{
		{Factory: mock.SourceFactory},
		{Factory: mock.SinkFactory},
	})
	require.NoError(t, err)
	defer p.Close()

	elements := p.Elements()
	assert.True(t, strings.HasPrefix(elements[0].Name(), mock.SourceFactory))
	assert.True(t, strings.HasPrefix(elements[1].Name(), mock.SinkFactory))
	assert.True(t, strings.HasPrefix(p.Name(), "pipeline-"))
}

func TestBuildFailure(t *testing.T) {
	tests := []struct {
		description string
		specs       func(prefix string) []vidpipe.ElementSpec
		expected    error
	}{
		{
			description: "unknown factory",
			specs: func(prefix string) []vidpipe.ElementSpec {
				return []vidpipe.ElementSpec{
					{Factory: prefix + "src"},
					{Factory: "nosuchfactory"},
				}
			},
			expected: vidpipe.ErrNoFactory,
		},
		{
			description: "broken factory",
			specs: func(prefix string) []vidpipe.ElementSpec {
				return []vidpipe.ElementSpec{
					{Factory: prefix + "src"},
					{Factory: mock.BrokenFactory},
				}
			},
			expected: mock.ErrMake,
		},
		{
			description: "caps mismatch",
			specs: func(prefix string) []vidpipe.ElementSpec {
				return []vidpipe.ElementSpec{
					{Factory: prefix + "src", Properties: map[string]interface{}{"caps": "video/x-h264"}},
					{Factory: prefix + "sink", Properties: map[string]interface{}{"caps": "audio/x-raw"}},
				}
			},
			expected: vidpipe.ErrLink,
		},
		{
			description: "sink first",
			specs: func(prefix string) []vidpipe.ElementSpec {
				return []vidpipe.ElementSpec{
					{Factory: prefix + "sink"},
					{Factory: prefix + "src"},
				}
			},
			expected: vidpipe.ErrLink,
		},
		{
			description: "duplicate name",
			specs: func(prefix string) []vidpipe.ElementSpec {
				return []vidpipe.ElementSpec{
					{Factory: prefix + "src", Name: "same"},
					{Factory: prefix + "sink", Name: "same"},
				}
			},
			expected: vidpipe.ErrDuplicateName,
		},
		{
			description: "unknown property",
			specs: func(prefix string) []vidpipe.ElementSpec {
				return []vidpipe.ElementSpec{
					{Factory: prefix + "src", Properties: map[string]interface{}{"no-such": 1}},
					{Factory: prefix + "sink"},
				}
			},
			expected: vidpipe.ErrNoProperty,
		},
		{
			description: "bad property value",
			specs: func(prefix string) []vidpipe.ElementSpec {
				return []vidpipe.ElementSpec{
					{Factory: prefix + "src", Properties: map[string]interface{}{"limit": "ten"}},
					{Factory: prefix + "sink"},
				}
			},
			expected: vidpipe.ErrPropertyType,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			r := newRecorder(t)
			p, err := vidpipe.Build("failure", test.specs(strings.ToLower(t.Name())))
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, test.expected), "unexpected error: %v", err)
			for _, s := range r.sources {
				assert.True(t, s.Closed, "%v is not closed", s.Name())
			}
			for _, s := range r.sinks {
				assert.True(t, s.Closed, "%v is not closed", s.Name())
			}
		})
	}
}

func TestLinkNotAdded(t *testing.T) {
	p, err := vidpipe.New("link")
	require.NoError(t, err)
	defer p.Close()

	src, sink := mock.NewSource("src"), mock.NewSink("sink")
	require.NoError(t, p.Add(src))
	err = p.Link(src, sink)
	assert.True(t, errors.Is(err, vidpipe.ErrLink))

	// unlinked pipeline can't be started.
	err = vidpipe.Wait(p.SetState(vidpipe.Ready))
	assert.True(t, errors.Is(err, vidpipe.ErrNotLinked))
	assert.Equal(t, vidpipe.Null, p.State())
}

func TestPlayToEOS(t *testing.T) {
	p, src, sink := buildMock(t, map[string]interface{}{"limit": 10, "size": 8, "value": 7})
	defer p.Close()

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	assert.Equal(t, vidpipe.Playing, p.State())
	assert.True(t, src.Opened)
	assert.True(t, sink.Opened)

	m := waitMessage(t, p, vidpipe.MessageEOS)
	assert.Equal(t, "test", m.Source())

	buffers, bytes := sink.Count()
	assert.Equal(t, 10, buffers)
	assert.Equal(t, 80, bytes)
	for _, b := range sink.Buffers() {
		assert.Equal(t, []byte{7, 7, 7, 7, 7, 7, 7, 7}, b.Data)
	}

	require.NoError(t, p.Close())
	assert.Equal(t, vidpipe.Null, p.State())
	assert.True(t, src.Closed)
	assert.True(t, sink.Closed)
}

func TestStateChangedMessages(t *testing.T) {
	p, _, _ := buildMock(t, map[string]interface{}{"limit": 1})
	defer p.Close()

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	expected := []struct {
		old, new, pending vidpipe.State
	}{
		{vidpipe.Null, vidpipe.Ready, vidpipe.Playing},
		{vidpipe.Ready, vidpipe.Paused, vidpipe.Playing},
		{vidpipe.Paused, vidpipe.Playing, vidpipe.VoidPending},
	}
	for _, e := range expected {
		m, ok := p.Bus().TimedPop(0, vidpipe.MessageStateChanged)
		require.True(t, ok)
		old, new, pending := m.ParseStateChanged()
		assert.Equal(t, e.old, old)
		assert.Equal(t, e.new, new)
		assert.Equal(t, e.pending, pending)
	}

	// same state again posts nothing.
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	assert.Equal(t, vidpipe.Playing, p.State())
	_, ok := p.Bus().TimedPop(0, vidpipe.MessageStateChanged)
	assert.False(t, ok)
}

func TestSetStateTwiceRunsHooksOnce(t *testing.T) {
	r := newRecorder(t)
	prefix := strings.ToLower(t.Name())
	p, err := vidpipe.Build("twice", []vidpipe.ElementSpec{
		{Factory: prefix + "src", Properties: map[string]interface{}{"limit": 3}},
		{Factory: prefix + "sink"},
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Ready)))
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Ready)))
	r.sources[0].Opened = false
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Ready)))
	assert.False(t, r.sources[0].Opened)
}

func TestPauseBlocksFlow(t *testing.T) {
	p, src, sink := buildMock(t, map[string]interface{}{"limit": 1000})
	defer p.Close()
	src.Interval = 2 * time.Millisecond

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Paused)))
	time.Sleep(20 * time.Millisecond)
	buffers, _ := sink.Count()
	assert.Equal(t, 0, buffers)

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Paused)))
	before, _ := sink.Count()
	assert.NotZero(t, before)
	time.Sleep(30 * time.Millisecond)
	after, _ := sink.Count()
	assert.True(t, after-before <= 2, "flow continued in paused: %d -> %d", before, after)

	require.NoError(t, vidpipe.Wait(p.Stop()))
	assert.Equal(t, vidpipe.Ready, p.State())
	assert.True(t, src.Flushed)
}

func TestStreamingError(t *testing.T) {
	p, _, sink := buildMock(t, map[string]interface{}{"limit": 10})
	defer p.Close()
	sink.ErrorOnCall = errors.New("sink failed")

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	m, err := vidpipe.Listen(context.Background(), p.Bus())
	require.NoError(t, err)
	assert.Equal(t, vidpipe.MessageError, m.Type())
	assert.Equal(t, "sink", m.Source())
	assert.Equal(t, sink.ErrorOnCall, m.Err())

	// no end-of-stream after error.
	_, ok := p.Bus().TimedPop(20*time.Millisecond, vidpipe.MessageEOS)
	assert.False(t, ok)
}

func TestOpenFailure(t *testing.T) {
	p, src, sink := buildMock(t, nil)
	defer p.Close()
	sink.ErrorOnOpen = errors.New("device busy")

	err := vidpipe.Wait(p.SetState(vidpipe.Playing))
	require.Error(t, err)
	var ee *vidpipe.ElementError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "sink", ee.Element)
	assert.Equal(t, vidpipe.Null, p.State())
	assert.True(t, src.Closed)
}

func TestBuildCapsMismatch(t *testing.T) {
	r := newRecorder(t)
	prefix := strings.ToLower(t.Name())
	p, err := vidpipe.Build("mismatch", []vidpipe.ElementSpec{
		{Factory: prefix + "src", Properties: map[string]interface{}{"caps": "video/x-h264"}},
		{Factory: prefix + "sink", Properties: map[string]interface{}{"caps": "audio/x-raw"}},
	})
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, vidpipe.ErrLink), "unexpected error: %v", err)
	require.Equal(t, 1, len(r.sources))
	assert.True(t, r.sources[0].Closed)
	assert.True(t, r.sinks[0].Closed)
}

func TestOpenCapsChanged(t *testing.T) {
	p, err := vidpipe.Build("changed", []vidpipe.ElementSpec{
		{Factory: mock.SourceFactory, Name: "source", Properties: map[string]interface{}{"limit": 1}},
		{Factory: mock.SinkFactory, Name: "sink"},
	})
	require.NoError(t, err)
	defer p.Close()
	src, _ := p.Element("source")
	sink, _ := p.Element("sink")
	require.NoError(t, src.Properties().Set("caps", "video/x-h264"))
	require.NoError(t, sink.Properties().Set("caps", "audio/x-raw"))

	err = vidpipe.Wait(p.SetState(vidpipe.Ready))
	assert.True(t, errors.Is(err, vidpipe.ErrLink), "unexpected error: %v", err)
	assert.Equal(t, vidpipe.Null, p.State())
	assert.False(t, src.(*mock.Source).Opened)

	require.NoError(t, sink.Properties().Set("caps", "video/x-h264"))
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Ready)))
}

func TestCloseNotStarted(t *testing.T) {
	p, src, sink := buildMock(t, nil)
	require.NoError(t, p.Close())
	assert.True(t, src.Closed)
	assert.True(t, sink.Closed)
}

func TestSeek(t *testing.T) {
	p, src, sink := buildMock(t, map[string]interface{}{"limit": 10, "frame": 100})
	defer p.Close()

	err := p.Seek(500*time.Millisecond, vidpipe.SeekFlagFlush|vidpipe.SeekFlagKeyUnit)
	assert.True(t, errors.Is(err, vidpipe.ErrInvalidState))

	_, err = p.QueryDuration()
	assert.True(t, errors.Is(err, vidpipe.ErrQueryFailed))

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Paused)))
	duration, err := p.QueryDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Second, duration)

	require.NoError(t, p.Seek(550*time.Millisecond, vidpipe.SeekFlagFlush|vidpipe.SeekFlagKeyUnit))
	assert.Equal(t, 1, src.Seeked)
	assert.True(t, src.Flushed)
	position, err := p.QueryPosition()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, position)

	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	waitMessage(t, p, vidpipe.MessageEOS)
	buffers := sink.Buffers()
	require.Equal(t, 5, len(buffers))
	assert.Equal(t, 500*time.Millisecond, buffers[0].PTS)
	position, err = p.QueryPosition()
	require.NoError(t, err)
	assert.Equal(t, 900*time.Millisecond, position)
}

func TestSeekNotSeekable(t *testing.T) {
	p, err := vidpipe.Build("seek", []vidpipe.ElementSpec{
		{Factory: mock.TransformFactory},
		{Factory: mock.SinkFactory},
	})
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, vidpipe.ErrLink))

	p, _, _ = buildMock(t, nil)
	defer p.Close()
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Paused)))
	err = p.Seek(time.Second, vidpipe.SeekFlagFlush)
	assert.True(t, errors.Is(err, vidpipe.ErrNotSeekable))
}

func TestSyncSink(t *testing.T) {
	p, _, _ := buildMock(t, map[string]interface{}{"limit": 5, "frame": 20})
	defer p.Close()
	sink, _ := p.Element("sink")
	require.NoError(t, sink.Properties().Set("sync", true))

	start := time.Now()
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	waitMessage(t, p, vidpipe.MessageEOS)
	assert.True(t, time.Since(start) >= 80*time.Millisecond)
}

func TestSetWindowHandle(t *testing.T) {
	p, _, sink := buildMock(t, nil)
	defer p.Close()

	require.NoError(t, p.SetWindowHandle(42))
	assert.Equal(t, uintptr(42), sink.WindowHandle())
}

func TestClose(t *testing.T) {
	p, _, _ := buildMock(t, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	err := vidpipe.Wait(p.SetState(vidpipe.Playing))
	assert.Equal(t, vidpipe.ErrClosed, err)
}

func TestDescribe(t *testing.T) {
	specs, err := vidpipe.Describe(mock.SourceFactory)
	require.NoError(t, err)
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "limit")
	assert.Contains(t, vidpipe.Factories(), mock.SinkFactory)
	assert.Contains(t, vidpipe.Factories(), vidpipe.CapsFilterFactory)

	_, err = vidpipe.Describe("nosuchfactory")
	assert.True(t, errors.Is(err, vidpipe.ErrNoFactory))
}
