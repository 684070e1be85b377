package vidpipe

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestValve(t *testing.T) {
	v := newValve()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, v.wait(ctx))

	v.open()
	v.open()
	assert.NoError(t, v.wait(context.Background()))

	v.close()
	v.close()
	done := make(chan error)
	go func() {
		done <- v.wait(context.Background())
	}()
	select {
	case <-done:
		t.Fatal("closed valve passed data")
	case <-time.After(10 * time.Millisecond):
	}
	v.open()
	assert.NoError(t, <-done)
}

func TestMergeErrors(t *testing.T) {
	errFirst, errSecond := errors.New("first"), errors.New("second")
	ec1, ec2, ec3 := make(chan error, 1), make(chan error, 1), make(chan error)
	ec1 <- errFirst
	ec2 <- errSecond
	close(ec1)
	close(ec2)
	close(ec3)

	var errs []error
	for err := range mergeErrors(ec1, ec2, ec3) {
		errs = append(errs, err)
	}
	assert.ElementsMatch(t, []error{errFirst, errSecond}, errs)
}

func TestClock(t *testing.T) {
	c := &clock{changed: make(chan struct{})}
	assert.Equal(t, time.Duration(0), c.now())

	// paused clock doesn't move.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.wait(ctx, time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded, err)

	c.reset(time.Second)
	lateness, err := c.wait(context.Background(), 500*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, lateness)

	c.start()
	start := time.Now()
	_, err = c.wait(context.Background(), time.Second+20*time.Millisecond)
	assert.NoError(t, err)
	assert.True(t, time.Since(start) >= 20*time.Millisecond)

	c.pause()
	paused := c.now()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, paused, c.now())
}

func TestStateNext(t *testing.T) {
	tests := []struct {
		from, target, next State
	}{
		{Null, Playing, Ready},
		{Ready, Playing, Paused},
		{Paused, Playing, Playing},
		{Playing, Null, Paused},
		{Ready, Null, Null},
	}
	for _, test := range tests {
		assert.Equal(t, test.next, test.from.next(test.target), "%v to %v", test.from, test.target)
	}
	assert.False(t, VoidPending.valid())
	assert.True(t, Playing.valid())

	s, err := ParseState("paused")
	assert.NoError(t, err)
	assert.Equal(t, Paused, s)
	_, err = ParseState("stopped")
	assert.True(t, errors.Is(err, ErrInvalidState))
}
