package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports"
)

type fakeSuspender struct {
	calls []string
	err   error
}

func (f *fakeSuspender) Suspend(service string) error {
	f.calls = append(f.calls, "suspend:"+service)
	return f.err
}

func (f *fakeSuspender) Continue(service string) error {
	f.calls = append(f.calls, "continue:"+service)
	return f.err
}

func TestController_Limit(t *testing.T) {
	tests := []struct {
		name    string
		spec    ports.ResourceSpec
		want    ports.ResourceSpec
		stored  bool
		wantErr bool
	}{
		{name: "within bounds", spec: ports.ResourceSpec{CPUs: 1, MemoryKB: 512}, want: ports.ResourceSpec{CPUs: 1, MemoryKB: 512}, stored: true},
		{name: "clamped", spec: ports.ResourceSpec{CPUs: 64, MemoryKB: 1 << 30}, want: ports.ResourceSpec{CPUs: 2, MemoryKB: 4096}, stored: true},
		{name: "zero clears", spec: ports.ResourceSpec{}, stored: false},
		{name: "negative", spec: ports.ResourceSpec{CPUs: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Config{MaxCPUs: 2, MaxMemoryKB: 4096}, nil, nil)
			err := c.Limit("svc", tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			got, ok := c.Limits("svc")
			assert.Equal(t, tt.stored, ok)
			if tt.stored {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestController_PauseResume(t *testing.T) {
	s := &fakeSuspender{}
	c := New(DefaultConfig(), s, nil)

	require.NoError(t, c.Pause("svc"))
	require.NoError(t, c.Pause("svc"))
	assert.True(t, c.IsPaused("svc"))

	require.NoError(t, c.Resume("svc"))
	require.NoError(t, c.Resume("svc"))
	assert.False(t, c.IsPaused("svc"))
	assert.Equal(t, []string{"suspend:svc", "continue:svc"}, s.calls)
}

func TestController_SuspenderFailure(t *testing.T) {
	s := &fakeSuspender{err: errors.New("no such process")}
	c := New(DefaultConfig(), s, nil)

	assert.Error(t, c.Pause("svc"))
	assert.False(t, c.IsPaused("svc"))
}
