package gotdd

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/go-tdd/tensor"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := newConfig()
	assert.Equal(t, DefaultEPS, cfg.EPS)
	assert.Equal(t, 1, cfg.Workers)
	assert.Zero(t, cfg.Timeout)
	assert.False(t, cfg.SharedSumCache)
	assert.NotNil(t, cfg.Logger)
}

func TestOptions(t *testing.T) {
	cfg := newConfig(
		WithEPS(1e-9),
		WithParallel(0),
		WithTimeout(time.Second),
		WithSharedSumCache(true),
	)
	assert.Equal(t, 1e-9, cfg.EPS)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.True(t, cfg.SharedSumCache)

	cfg = newConfig(WithEPS(-1), WithParallel(3))
	assert.Equal(t, DefaultEPS, cfg.EPS, "non-positive EPS is ignored")
	assert.Equal(t, 3, cfg.Workers)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
eps: 1.0e-8
workers: 4
timeout: 30s
shared_sum_cache: true
`))
	require.NoError(t, err)
	assert.Equal(t, 1e-8, cfg.EPS)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.SharedSumCache)

	cfg, err = ParseConfig([]byte("workers: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, DefaultEPS, cfg.EPS, "missing fields keep defaults")
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"eps too large", "eps: 2\n"},
		{"eps zero", "eps: 0\n"},
		{"negative workers", "workers: -1\n"},
		{"negative timeout", "timeout: -1s\n"},
		{"malformed", "eps: [1, 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tdd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("eps: 1.0e-7\nworkers: 2\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1e-7, cfg.EPS)

	e := NewEngine(WithConfig(cfg))
	assert.Equal(t, 1e-7, e.Config().EPS)
	assert.Equal(t, 2, e.Config().Workers)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWithTimeout(t *testing.T) {
	e := newTestEngine(WithTimeout(time.Minute))
	ctx, cancel := e.withTimeout(t.Context())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	e = newTestEngine()
	ctx, cancel = e.withTimeout(t.Context())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok, "zero timeout sets no deadline")
}

func TestWithTimeout_Expired(t *testing.T) {
	e := newTestEngine(WithTimeout(time.Minute))
	ctx, cancel := context.WithDeadline(t.Context(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := e.Construct(ctx, tensor.Eye(4), 0, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
