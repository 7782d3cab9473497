package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDependency(t *testing.T) {
	tests := []struct {
		in      string
		want    Dependency
		wantErr bool
	}{
		{in: "broker", want: Dependency{Name: "broker", Type: Hard}},
		{in: "broker:SOFT", want: Dependency{Name: "broker", Type: Soft}},
		{in: "broker:soft", want: Dependency{Name: "broker", Type: Soft}},
		{in: "broker:s", want: Dependency{Name: "broker", Type: Soft}},
		{in: " broker : Har ", want: Dependency{Name: "broker", Type: Hard}},
		{in: "broker:medium", wantErr: true},
		{in: "broker:", wantErr: true},
		{in: ":HARD", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDependency(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDependency)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDependencies_LastTypeWins(t *testing.T) {
	deps, err := ParseDependencies([]string{"a", "b:SOFT", "a:SOFT"})
	require.NoError(t, err)
	assert.Equal(t, []Dependency{
		{Name: "a", Type: Soft},
		{Name: "b", Type: Soft},
	}, deps)
}

func TestDependency_String(t *testing.T) {
	assert.Equal(t, "a:HARD", Dependency{Name: "a"}.String())
	assert.Equal(t, "a:SOFT", Dependency{Name: "a", Type: Soft}.String())
}
