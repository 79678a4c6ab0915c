package keeper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"xenvman/pkg/client"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mutex sync.Mutex
	calls int
	errs  []error
}

func (f *fakeTarget) ID() string { return "env-1" }

func (f *fakeTarget) Keepalive(ctx context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeTarget) Calls() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestIntervalFor(t *testing.T) {
	cases := map[string]time.Duration{
		"2m":    time.Minute,
		"10s":   5 * time.Second,
		"1s":    MinInterval,
		"":      FallbackInterval,
		"never": FallbackInterval,
		"-5m":   FallbackInterval,
	}

	for keepAlive, want := range cases {
		assert.Equal(t, want, IntervalFor(keepAlive), "keep_alive %q", keepAlive)
	}
}

func TestNewFallbackInterval(t *testing.T) {
	assert.Equal(t, FallbackInterval, New(&fakeTarget{}, 0, quietLogger()).Interval())
	assert.Equal(t, time.Second, New(&fakeTarget{}, time.Second, quietLogger()).Interval())
}

func TestRunUntilCancelled(t *testing.T) {
	target := &fakeTarget{errs: []error{errors.New("connection reset")}}
	k := New(target, 5*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool { return target.Calls() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("keeper did not stop")
	}
}

func TestRunStopsWhenEnvironmentIsGone(t *testing.T) {
	gone := &client.ProtocolError{Status: http.StatusNotFound, Reason: "Not Found"}
	target := &fakeTarget{errs: []error{gone}}
	k := New(target, time.Hour, quietLogger())

	err := k.Run(context.Background())
	assert.True(t, client.IsNotFound(err))
	assert.Equal(t, 1, target.Calls())
}

func TestRunAgainstServerError(t *testing.T) {
	unavailable := &client.ProtocolError{Status: http.StatusServiceUnavailable, Reason: "Service Unavailable"}
	target := &fakeTarget{errs: []error{unavailable, unavailable}}
	k := New(target, time.Millisecond, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		for target.Calls() < 4 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	assert.NoError(t, k.Run(ctx))
	assert.GreaterOrEqual(t, target.Calls(), 4)
}
