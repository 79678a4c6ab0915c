package env

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputEnvRoundTrip(t *testing.T) {
	in := NewInputEnv("demo",
		NewTpl("web", map[string]interface{}{"replicas": float64(2), "debug": true}),
		NewTpl("web", nil),
		NewTpl("db", map[string]interface{}{"user": "root", "tags": []interface{}{"a", "b"}}),
	)
	in.Description = "integration env"
	in.Options = EnvOptions{KeepAlive: "10m", DisableDiscovery: true}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out InputEnv
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, *in, out)
}

func TestInputEnvRoundTripDefaults(t *testing.T) {
	in := NewInputEnv("bare")

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "bare",
		"description": "",
		"templates": [],
		"options": {"keep_alive": "2m", "disable_discovery": false}
	}`, string(data))

	var out InputEnv
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, *in, out)
}

func TestInputEnvDecodeMissingOptionalKeys(t *testing.T) {
	var out InputEnv
	require.NoError(t, json.Unmarshal([]byte(`{"name": "x", "templates": [{"tpl": "db"}]}`), &out))

	assert.Equal(t, "x", out.Name)
	assert.Equal(t, "", out.Description)
	assert.Equal(t, DefaultEnvOptions(), out.Options)
	require.Len(t, out.Templates, 1)
	assert.Equal(t, "db", out.Templates[0].Tpl)
	assert.NotNil(t, out.Templates[0].Parameters)
	assert.Empty(t, out.Templates[0].Parameters)

	var partial InputEnv
	require.NoError(t, json.Unmarshal([]byte(`{"name": "y", "options": {"disable_discovery": true}}`), &partial))
	assert.Equal(t, EnvOptions{KeepAlive: "2m", DisableDiscovery: true}, partial.Options)
	assert.Equal(t, []Tpl{}, partial.Templates)

	var nullOpts InputEnv
	require.NoError(t, json.Unmarshal([]byte(`{"name": "z", "options": null}`), &nullOpts))
	assert.Equal(t, DefaultEnvOptions(), nullOpts.Options)
}

func TestInputEnvDecodeMissingRequiredKeys(t *testing.T) {
	var out InputEnv
	err := json.Unmarshal([]byte(`{"description": "no name"}`), &out)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "name", decodeErr.Key)

	err = json.Unmarshal([]byte(`{"name": "x", "templates": [{"parameters": {}}]}`), &out)
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "tpl", decodeErr.Key)
}

func TestInputEnvEmptyNameIsAccepted(t *testing.T) {
	var out InputEnv
	require.NoError(t, json.Unmarshal([]byte(`{"name": ""}`), &out))
	assert.Equal(t, "", out.Name)
}

func TestEnvOptionsNormalizesKeepAlive(t *testing.T) {
	data, err := json.Marshal(EnvOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"keep_alive": "2m", "disable_discovery": false}`, string(data))

	d, err := EnvOptions{KeepAlive: "90s"}.Duration()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = EnvOptions{}.Duration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)
}

func TestTemplateCounts(t *testing.T) {
	in := NewInputEnv("demo", NewTpl("web", nil), NewTpl("web", nil), NewTpl("db", nil))
	assert.Equal(t, map[string]int{"web": 2, "db": 1}, in.TemplateCounts())
}

func TestOutputEnvDecode(t *testing.T) {
	raw := `{
		"id": "env-1",
		"name": "demo",
		"created": "2019-03-01T10:00:00Z",
		"external_address": "10.0.0.5",
		"templates": {
			"db": [{"containers": {"pg": {"id": "c1", "hostname": "pg.0.db.xenv", "ports": {"pg": 32000}}}}]
		}
	}`

	var out OutputEnv
	require.NoError(t, json.Unmarshal([]byte(raw), &out))

	assert.Equal(t, "env-1", out.ID)
	assert.Equal(t, "", out.Description)
	assert.Equal(t, "", out.KeepAlive)
	assert.Equal(t, "10.0.0.5", out.ExternalAddress)

	created, err := out.CreatedAt()
	require.NoError(t, err)
	assert.True(t, time.Date(2019, 3, 1, 10, 0, 0, 0, time.UTC).Equal(created))

	pg, err := out.GetContainer("db", 0, "pg")
	require.NoError(t, err)
	assert.Equal(t, &ContainerData{ID: "c1", Hostname: "pg.0.db.xenv", Ports: map[string]int{"pg": 32000}}, pg)
}

func TestOutputEnvDecodeMissingRequiredKeys(t *testing.T) {
	cases := map[string]struct {
		raw string
		key string
	}{
		"id":               {`{"external_address": "a", "templates": {}}`, "id"},
		"external address": {`{"id": "x", "templates": {}}`, "external_address"},
		"templates":        {`{"id": "x", "external_address": "a"}`, "templates"},
		"containers":       {`{"id": "x", "external_address": "a", "templates": {"db": [{}]}}`, "containers"},
		"container ports": {
			`{"id": "x", "external_address": "a", "templates": {"db": [{"containers": {"pg": {"id": "c", "hostname": "h"}}}]}}`,
			"ports",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var out OutputEnv
			err := json.Unmarshal([]byte(tc.raw), &out)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, tc.key, decodeErr.Key)
		})
	}
}

func TestPatchEnvEncodesEmptyLists(t *testing.T) {
	data, err := json.Marshal(PatchEnv{StopContainers: []string{"web"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stop_containers": ["web"], "restart_containers": [], "templates": []}`, string(data))
}

func TestTplInfoDecodeDefaults(t *testing.T) {
	raw := `{"description": "postgres", "parameters": {"user": {"type": "string", "mandatory": true}}}`

	var info TplInfo
	require.NoError(t, json.Unmarshal([]byte(raw), &info))

	assert.Equal(t, "postgres", info.Description)
	assert.Equal(t, []string{}, info.DataDir)
	require.Contains(t, info.Parameters, "user")
	assert.Equal(t, &TplInfoParam{Type: "string", Mandatory: true}, info.Parameters["user"])
}
