package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/edgevisor/internal/domain"
)

func TestParseSkipCondition(t *testing.T) {
	tests := []struct {
		expr    string
		want    SkipCondition
		wantErr bool
	}{
		{expr: "onpath apt-get", want: SkipCondition{Op: SkipOnPath, Arg: "apt-get"}},
		{expr: "  exists  /etc/edge.conf ", want: SkipCondition{Op: SkipExists, Arg: "/etc/edge.conf"}},
		{expr: "! onpath yum", want: SkipCondition{Op: SkipOnPath, Arg: "yum", Negate: true}},
		{expr: "exists", wantErr: true},
		{expr: "missing /tmp", wantErr: true},
		{expr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseSkipCondition(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSpec_SkipIf(t *testing.T) {
	spec, err := ParseSpec("pkg", map[string]any{
		"lifecycle": map[string]any{
			"install": map[string]any{"script": "apt-get install -y jq", "skipif": "onpath jq"},
			"run":     "jq --version",
		},
	})
	require.NoError(t, err)

	install, ok := spec.Stage(domain.StageInstall)
	require.True(t, ok)
	require.NotNil(t, install.SkipIf)
	assert.Equal(t, "onpath jq", install.SkipIf.String())

	run, _ := spec.Stage(domain.StageRun)
	assert.Nil(t, run.SkipIf)
}
