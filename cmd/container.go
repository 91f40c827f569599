// cmd/container.go wires the process's single pkg/container.Container and
// walks it through the startup sequence: load config, build the
// container, run bootstrap invariants, start background workers.
package main

import (
	"context"

	"github.com/ammonsd/activitytracking-core/pkg/config"
	"github.com/ammonsd/activitytracking-core/pkg/container"
	"github.com/ammonsd/activitytracking-core/pkg/logx"
)

func newContainer(ctx context.Context) *container.Container {
	cfg := config.Load()

	c, err := container.New(cfg)
	if err != nil {
		logx.Fatalf("failed to initialize application container: %v", err)
	}

	if err := c.RunBootstrap(ctx); err != nil {
		logx.Fatalf("startup invariant failed: %v", err)
	}

	if err := c.StartBackground(ctx); err != nil {
		logx.Fatalf("failed to start background services: %v", err)
	}

	return c
}
