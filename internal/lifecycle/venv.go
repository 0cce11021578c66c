// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/holomush/scriptkit/internal/config"
)

// maxParallelFetches bounds concurrent fetch entries during setup.
const maxParallelFetches = 4

// setupVenv installs packages and fetches files at the same time, then makes
// whatever landed in the filesystem importable.
func (c *Controller) setupVenv(ctx context.Context) error {
	if err := c.enter(StateVenvSetup); err != nil {
		return err
	}

	cfg := c.Config()
	paths, err := cfg.FetchPaths()
	if err != nil {
		return err
	}
	s := c.Session()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.InstallPackage(gctx, cfg.Packages)
	})
	g.Go(func() error {
		return c.fetchResources(gctx, paths)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.InvalidateModulePathCache(ctx); err != nil {
		return fmt.Errorf("refresh module path: %w", err)
	}
	return nil
}

func (c *Controller) fetchResources(ctx context.Context, paths []config.FetchPath) error {
	s := c.Session()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for _, p := range paths {
		g.Go(func() error {
			c.logger.Debug("fetching resource", "url", p.URL, "path", p.Path)
			return s.LoadFileFromURL(gctx, p.Path, p.URL)
		})
	}
	return g.Wait()
}
