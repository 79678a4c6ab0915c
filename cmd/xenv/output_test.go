package main

import (
	"bytes"
	"testing"

	"xenvman/pkg/container"
	"xenvman/pkg/env"

	"github.com/stretchr/testify/assert"
)

func TestFormatPorts(t *testing.T) {
	assert.Equal(t, "-", formatPorts("10.0.0.1", nil))
	assert.Equal(t,
		"http->10.0.0.1:30001, metrics->10.0.0.1:30002",
		formatPorts("10.0.0.1", map[string]int{"metrics": 30002, "http": 30001}),
	)
}

func TestFormatHostPorts(t *testing.T) {
	assert.Equal(t, "-", formatHostPorts(map[string]string{}))
	assert.Equal(t, "32768:80/tcp, 32769:9090/tcp",
		formatHostPorts(map[string]string{"9090/tcp": "32769", "80/tcp": "32768"}))
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "-", formatParams(nil))
	assert.Equal(t, "port, user*", formatParams(map[string]*env.TplInfoParam{
		"user": {Mandatory: true},
		"port": {Type: "number"},
	}))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 12))
	assert.Equal(t, "0123456789ab", truncateString("0123456789abcdef", 12))
}

func TestPrintEnv(t *testing.T) {
	out := &env.OutputEnv{
		ID:              "env-1",
		Name:            "demo",
		ExternalAddress: "127.0.0.1",
		KeepAlive:       "2m",
		Templates: map[string][]*env.TplData{
			"web": {
				{Containers: map[string]*env.ContainerData{
					"app": {ID: "c-1", Hostname: "app.0.web.xenv", Ports: map[string]int{"http": 30000}},
				}},
			},
		},
	}

	var buf bytes.Buffer
	printEnv(&buf, out)

	assert.Contains(t, buf.String(), "env-1")
	assert.Contains(t, buf.String(), "app.0.web.xenv")
	assert.Contains(t, buf.String(), "http->127.0.0.1:30000")
}

func TestPrintEnvWithoutContainers(t *testing.T) {
	var buf bytes.Buffer
	printEnv(&buf, &env.OutputEnv{ID: "env-2", ExternalAddress: "127.0.0.1"})
	assert.Contains(t, buf.String(), "No containers.")
}

func TestPrintStatuses(t *testing.T) {
	var buf bytes.Buffer
	printStatuses(&buf, []*container.Status{
		{Template: "db", Container: "pg", ID: "c-pg", State: container.StateMissing},
	})

	assert.Contains(t, buf.String(), "missing")
	assert.Contains(t, buf.String(), "db")
}
