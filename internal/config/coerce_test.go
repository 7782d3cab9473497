package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDuration(t *testing.T) {
	tests := []struct {
		in      any
		want    time.Duration
		wantErr bool
	}{
		{in: 30, want: 30 * time.Second},
		{in: int64(5), want: 5 * time.Second},
		{in: 1.5, want: 1500 * time.Millisecond},
		{in: "90", want: 90 * time.Second},
		{in: "250ms", want: 250 * time.Millisecond},
		{in: "soon", wantErr: true},
		{in: true, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ToDuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ToDuration(%v)", tt.in)
			continue
		}
		require.NoError(t, err, "ToDuration(%v)", tt.in)
		assert.Equal(t, tt.want, got, "ToDuration(%v)", tt.in)
	}
}

func TestToInt(t *testing.T) {
	n, err := ToInt("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = ToInt(int64(7))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = ToInt("seven")
	assert.Error(t, err)
}

func TestToBool(t *testing.T) {
	b, err := ToBool("true")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = ToBool(3)
	assert.Error(t, err)
}

func TestToStringList(t *testing.T) {
	got, err := ToStringList([]any{"a", "b:SOFT"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b:SOFT"}, got)

	got, err = ToStringList("a, b ,")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = ToStringList(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
