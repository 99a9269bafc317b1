package clocksync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	ms  int64
	err error
}

func (f *fakeSource) ServerTimeMs(ctx context.Context) (int64, error) {
	return f.ms, f.err
}

func TestStartInstallsFallbackOnFailure(t *testing.T) {
	s := New(&fakeSource{err: errors.New("boom")})
	require := assert.New(t)

	err := s.Start(context.Background())
	require.NoError(err)
	require.Equal(fallbackOffsetMs, s.Offset())
}

func TestStartComputesMidpointOffset(t *testing.T) {
	s := New(&fakeSource{ms: 1_000_000_005})
	err := s.Start(context.Background())
	assert.NoError(t, err)
	// offset is within a small band since we don't control t_before/t_after precisely,
	// but it must differ from the fallback and from zero in the expected direction.
	assert.NotEqual(t, fallbackOffsetMs, s.Offset())
	assert.Less(t, s.Offset(), int64(0))
}

func TestResyncKeepsPreviousOffsetOnFailure(t *testing.T) {
	good := &fakeSource{ms: 5_000_000_000}
	s := New(good)
	require_ := assert.New(t)
	require_.NoError(s.Start(context.Background()))
	first := s.Offset()

	s.source = &fakeSource{err: errors.New("down")}
	s.Resync(context.Background())

	require_.Equal(first, s.Offset())
}
