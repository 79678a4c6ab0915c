package client

import (
	"context"
	"fmt"
	"net/http"

	"xenvman/pkg/env"

	"github.com/sirupsen/logrus"
)

// Env is a handle to a live environment. It holds exactly one snapshot of
// the environment, replaced as a whole by every successful Patch.
//
// Env is not safe for concurrent lifecycle calls; callers must serialize
// Patch, Terminate and Keepalive themselves.
type Env struct {
	client *Client
	out    *env.OutputEnv
}

func newEnv(c *Client, out *env.OutputEnv) *Env {
	return &Env{client: c, out: out}
}

// ID returns the environment id
func (e *Env) ID() string {
	return e.out.ID
}

// ExternalAddress returns the address the environment is reachable at
func (e *Env) ExternalAddress() string {
	return e.out.ExternalAddress
}

// Snapshot returns the current environment snapshot. It must not be modified.
func (e *Env) Snapshot() *env.OutputEnv {
	return e.out
}

// GetContainer looks a container up in the current snapshot.
// ContainerData obtained before a Patch is stale afterwards.
func (e *Env) GetContainer(tplName string, tplIdx int, contName string) (*env.ContainerData, error) {
	return e.out.GetContainer(tplName, tplIdx, contName)
}

// Terminate deletes the environment. The handle must not be used for
// lifecycle calls afterwards.
func (e *Env) Terminate(ctx context.Context) error {
	if err := e.client.call(ctx, http.MethodDelete, envPath(e.out.ID), nil, nil); err != nil {
		return fmt.Errorf("failed to terminate environment %s: %w", e.out.ID, err)
	}

	e.client.logger.WithField("env_id", e.out.ID).Info("Environment terminated")
	return nil
}

// Patch applies a delta and replaces the snapshot with the server's result.
// On error the snapshot is left as it was.
func (e *Env) Patch(ctx context.Context, patch *env.PatchEnv) error {
	if patch == nil {
		patch = &env.PatchEnv{}
	}

	var out env.OutputEnv
	if err := e.client.call(ctx, http.MethodPatch, envPath(e.out.ID), patch, &out); err != nil {
		return fmt.Errorf("failed to patch environment %s: %w", e.out.ID, err)
	}

	e.out = &out

	e.client.logger.WithFields(logrus.Fields{
		"env_id":             out.ID,
		"stop_containers":    len(patch.StopContainers),
		"restart_containers": len(patch.RestartContainers),
		"templates":          len(patch.Templates),
	}).Info("Environment patched")

	return nil
}

// Keepalive resets the server-side idle timer
func (e *Env) Keepalive(ctx context.Context) error {
	if err := e.client.call(ctx, http.MethodPost, envPath(e.out.ID)+"/keepalive", nil, nil); err != nil {
		return fmt.Errorf("failed to keep environment %s alive: %w", e.out.ID, err)
	}

	e.client.logger.WithField("env_id", e.out.ID).Debug("Environment kept alive")
	return nil
}
