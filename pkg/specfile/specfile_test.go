package specfile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"xenvman/pkg/env"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoader() *Loader {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewLoader(logger)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadInputJSON(t *testing.T) {
	path := writeFile(t, "env.json", `{
		"name": "demo",
		"templates": [
			{"tpl": "web", "parameters": {"port": 8080}},
			{"tpl": "web"}
		],
		"options": {"keep_alive": "5m"}
	}`)

	input, err := newLoader().LoadInput(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", input.Name)
	assert.Equal(t, env.EnvOptions{KeepAlive: "5m"}, input.Options)
	require.Len(t, input.Templates, 2)
	assert.Equal(t, float64(8080), input.Templates[0].Parameters["port"])
	assert.Empty(t, input.Templates[1].Parameters)
}

func TestLoadInputYAML(t *testing.T) {
	path := writeFile(t, "env.yml", `
name: demo
description: from yaml
templates:
  - tpl: db
    parameters:
      user: root
      ports:
        5432: pg
options:
  disable_discovery: true
`)

	input, err := newLoader().LoadInput(path)
	require.NoError(t, err)

	assert.Equal(t, "from yaml", input.Description)
	assert.Equal(t, env.EnvOptions{KeepAlive: "2m", DisableDiscovery: true}, input.Options)
	require.Len(t, input.Templates, 1)
	assert.Equal(t, "root", input.Templates[0].Parameters["user"])
	assert.Equal(t, map[string]interface{}{"5432": "pg"}, input.Templates[0].Parameters["ports"])
}

func TestLoadInputErrors(t *testing.T) {
	_, err := newLoader().LoadInput(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "spec file not found")

	_, err = newLoader().LoadInput(writeFile(t, "bad.yaml", "name: [unclosed"))
	assert.Error(t, err)

	_, err = newLoader().LoadInput(writeFile(t, "noname.json", `{"templates": []}`))
	var decodeErr *env.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "name", decodeErr.Key)
}

func TestLoadPatch(t *testing.T) {
	path := writeFile(t, "patch.yaml", `
stop_containers: [sidecar]
templates:
  - tpl: web
`)

	patch, err := newLoader().LoadPatch(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"sidecar"}, patch.StopContainers)
	assert.Empty(t, patch.RestartContainers)
	require.Len(t, patch.Templates, 1)
	assert.Equal(t, "web", patch.Templates[0].Tpl)
}

func TestSaveInputRoundTrip(t *testing.T) {
	input := env.NewInputEnv("demo",
		env.NewTpl("web", map[string]interface{}{"debug": true}),
		env.NewTpl("db", nil),
	)
	input.Options.KeepAlive = "10m"

	for _, name := range []string{"env.json", "env.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			l := newLoader()

			require.NoError(t, l.SaveInput(path, input))
			loaded, err := l.LoadInput(path)
			require.NoError(t, err)
			assert.Equal(t, input, loaded)
		})
	}
}
