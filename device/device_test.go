package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type flaky struct {
	mu       sync.Mutex
	failures int
	dumps    int
	taps     int
}

var errFlaky = errors.New("adb: closed")

func (f *flaky) Dump(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dumps++
	if f.dumps <= f.failures {
		return "", errFlaky
	}
	return "<hierarchy/>", nil
}

func (f *flaky) Tap(context.Context, int, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taps++
	return errFlaky
}

func TestWithRetry(t *testing.T) {
	f := &flaky{failures: 2}
	d := Chain(f, WithRetry(3, time.Millisecond, nil))
	out, err := d.Dump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<hierarchy/>", out)
	assert.Equal(t, 3, f.dumps)

	// Taps are never retried.
	assert.ErrorIs(t, d.Tap(context.Background(), 1, 2), errFlaky)
	assert.Equal(t, 1, f.taps)
}

func TestWithRetry_GivesUp(t *testing.T) {
	f := &flaky{failures: 10}
	_, err := Chain(f, WithRetry(2, time.Millisecond, nil)).Dump(context.Background())
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, f.dumps)
}

func TestWithTimeout(t *testing.T) {
	slow := Funcs{DumpFunc: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	_, err := Chain(slow, WithTimeout(5*time.Millisecond)).Dump(context.Background())
	var te *CallTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "dump", te.Op)

	err = Chain(slow, WithTimeout(time.Second)).Tap(context.Background(), 0, 0)
	assert.ErrorContains(t, err, "tap not supported")
}

func TestBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewBreaker(WithThreshold(2), WithResetTimeout(time.Minute), WithHalfOpenMax(1),
		WithBreakerClock(func() time.Time { return now }))
	f := &flaky{failures: 100}
	d := Chain(f, WithRetry(5, time.Millisecond, nil), WithBreaker(cb, "emulator-5554"))

	// Retries stop as soon as the breaker opens.
	_, err := d.Dump(context.Background())
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "emulator-5554", open.Device)
	assert.Equal(t, 2, f.dumps)
	assert.Equal(t, BreakerOpen, cb.State())

	now = now.Add(time.Minute)
	assert.Equal(t, BreakerHalfOpen, cb.State())
	f.failures = 0
	_, err = d.Dump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewBreaker(WithThreshold(1), WithBreakerClock(func() time.Time { return now }))
	cb.Record(errFlaky)
	assert.False(t, cb.Allow())
	now = now.Add(30 * time.Second)
	assert.True(t, cb.Allow())
	cb.Record(errFlaky)
	assert.Equal(t, BreakerOpen, cb.State())
	cb.Reset()
	assert.True(t, cb.Allow())
}

func TestReplay(t *testing.T) {
	r := NewReplay("a", "b")
	ctx := context.Background()
	for _, want := range []string{"a", "b", "b"} {
		got, err := r.Dump(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.NoError(t, r.Tap(ctx, 3, 4))
	assert.Equal(t, []Tap{{3, 4}}, r.Taps())

	_, err := NewReplay().Dump(ctx)
	assert.ErrorIs(t, err, ErrNoDumps)
}

func TestReplay_AdvanceOnTap(t *testing.T) {
	r := NewReplay("before", "after").AdvanceOnTap()
	ctx := context.Background()
	got, _ := r.Dump(ctx)
	assert.Equal(t, "before", got)
	got, _ = r.Dump(ctx)
	assert.Equal(t, "before", got)
	require.NoError(t, r.Tap(ctx, 1, 1))
	got, _ = r.Dump(ctx)
	assert.Equal(t, "after", got)
}

func TestLoadReplay(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "screen.xml")
	require.NoError(t, os.WriteFile(p, []byte("<hierarchy/>"), 0o644))

	r, err := LoadReplay(p)
	require.NoError(t, err)
	got, err := r.Dump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<hierarchy/>", got)

	_, err = LoadReplay(filepath.Join(dir, "missing.xml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
