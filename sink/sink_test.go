package sink_test

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/vidpipe"
	"github.com/dudk/vidpipe/mock"
	"github.com/dudk/vidpipe/sink"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func play(t *testing.T, sinkSpec vidpipe.ElementSpec) *vidpipe.Pipeline {
	t.Helper()
	p, err := vidpipe.Build("sink", []vidpipe.ElementSpec{
		{Factory: mock.SourceFactory, Properties: map[string]interface{}{"limit": 5, "size": 8, "value": 7}},
		sinkSpec,
	})
	require.NoError(t, err)
	require.NoError(t, vidpipe.Wait(p.SetState(vidpipe.Playing)))
	_, ok := p.Bus().TimedPop(5*time.Second, vidpipe.MessageEOS|vidpipe.MessageError)
	require.True(t, ok)
	return p
}

func TestFake(t *testing.T) {
	p := play(t, vidpipe.ElementSpec{Factory: sink.FakeFactory, Name: "fake"})
	defer p.Close()

	e, ok := p.Element("fake")
	require.True(t, ok)
	fake := e.(*sink.Fake)
	buffers, size := fake.Count()
	assert.Equal(t, 5, buffers)
	assert.Equal(t, 40, size)
	assert.Equal(t, []byte{7, 7, 7, 7, 7, 7, 7, 7}, fake.Last().Data)
}

func TestFakeHandoff(t *testing.T) {
	fake := sink.NewFake("fake")
	var handed []*vidpipe.Buffer
	fake.Handoff = func(b *vidpipe.Buffer) {
		handed = append(handed, b)
	}
	fn, err := fake.Sink()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, fn(vidpipe.NewBuffer([]byte{byte(i)})))
	}
	assert.Equal(t, 3, len(handed))
	assert.Equal(t, handed[2], fake.Last())
	assert.True(t, fake.SinkCaps().IsAny())
}

func TestFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "filesink")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	location := filepath.Join(dir, "out.h264")

	p := play(t, vidpipe.ElementSpec{
		Factory:    sink.FileFactory,
		Properties: map[string]interface{}{"location": location},
	})
	require.NoError(t, p.Close())

	data, err := ioutil.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{7}, 40), data)

	// second run appends.
	p = play(t, vidpipe.ElementSpec{
		Factory:    sink.FileFactory,
		Properties: map[string]interface{}{"location": location, "append": true},
	})
	require.NoError(t, p.Close())
	data, err = ioutil.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, 80, len(data))
}

func TestFileNoLocation(t *testing.T) {
	f := sink.NewFile("file")
	assert.Error(t, f.Open())
	_, err := f.Sink()
	assert.Error(t, err)
	assert.NoError(t, f.Flush())
	assert.NoError(t, f.Close())
}
