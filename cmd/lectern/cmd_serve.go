// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	lecternconfig "github.com/teradata-labs/lectern/pkg/config"
	"github.com/teradata-labs/lectern/pkg/corpus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the lectern HTTP API.

Routes: /health, /api/search, /api/rag/search, /api/summary,
/api/recommend_chat and /api/answer. With corpus.watch enabled the
summaries file is reloaded when it changes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	comps, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, comps)
}

// serve runs the HTTP server and, when enabled, the corpus watcher until
// ctx is done or either fails.
func serve(ctx context.Context, comps *components) error {
	srv, err := comps.Server(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })

	if comps.cfg.Corpus.Watch {
		watcher, err := comps.corpusWatcher(gctx)
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Watch(gctx) })
	}

	return g.Wait()
}

// corpusWatcher returns a FileStore that follows the summaries file. For
// database backends every successful reload is written through to the
// database.
func (c *components) corpusWatcher(ctx context.Context) (*corpus.FileStore, error) {
	logger := c.logger.Named("corpus")

	if c.cfg.Corpus.Backend == lecternconfig.CorpusFile {
		if _, err := c.Corpus(ctx); err != nil {
			return nil, err
		}
		c.file.OnReload = func(n int, err error) {
			if err == nil {
				logger.Info("Corpus reloaded", zap.Int("entries", n))
			}
		}
		return c.file, nil
	}

	store, err := c.SQL(ctx)
	if err != nil {
		return nil, err
	}
	fs, err := corpus.OpenFile(c.cfg.Corpus.Path, corpus.WithLogger(logger), corpus.WithTracer(c.tracer))
	if err != nil {
		return nil, err
	}
	fs.OnReload = func(_ int, err error) {
		if err != nil {
			return
		}
		entries, err := fs.Entries(ctx)
		if err != nil {
			logger.Warn("Failed to read reloaded corpus", zap.Error(err))
			return
		}
		n, err := store.Replace(ctx, entries)
		if err != nil {
			logger.Error("Failed to write reloaded corpus", zap.Error(err))
			return
		}
		logger.Info("Corpus reloaded into database",
			zap.String("dialect", string(store.Dialect())), zap.Int("entries", n))
	}
	return fs, nil
}
