package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDoc = `
services:
  zeta:
    lifecycle:
      run: ./zeta
  alpha:
    dependencies: [zeta]
    lifecycle:
      startup: ./alpha
  mid: ~
`

const tomlDoc = `
[[services]]
name = "zeta"
[services.lifecycle]
run = "./zeta"

[[services]]
name = "alpha"
dependencies = ["zeta:SOFT"]
`

func TestParse_YAMLKeepsDeclarationOrder(t *testing.T) {
	doc, err := Parse([]byte(yamlDoc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, doc.Services)

	services := doc.Root[ServicesKey].(map[string]any)
	assert.Equal(t, map[string]any{}, services["mid"])

	spec, err := ParseSpec("alpha", services["alpha"].(map[string]any))
	require.NoError(t, err)
	require.Len(t, spec.Dependencies, 1)
	assert.Equal(t, "zeta", spec.Dependencies[0].Name)
}

func TestParse_TOMLServiceList(t *testing.T) {
	doc, err := Parse([]byte(tomlDoc), FormatTOML)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, doc.Services)

	services := doc.Root[ServicesKey].(map[string]any)
	zeta := services["zeta"].(map[string]any)
	_, hasName := zeta["name"]
	assert.False(t, hasName)
	assert.Equal(t, "./zeta", zeta["lifecycle"].(map[string]any)["run"])
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("services: [{lifecycle: {}}]"), FormatYAML)
	assert.ErrorContains(t, err, "missing name")

	_, err = Parse([]byte("services: [{name: a}, {name: a}]"), FormatYAML)
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte("services = 3"), FormatTOML)
	assert.Error(t, err)

	_, err = Parse([]byte("services: [unclosed"), FormatYAML)
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	doc, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, doc.Services)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlDoc), 0o644))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Services, 2)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatTOML, FormatOf("/etc/edgevisor/services.TOML"))
	assert.Equal(t, FormatYAML, FormatOf("services.yml"))
	assert.Equal(t, FormatYAML, FormatOf("services"))
}
