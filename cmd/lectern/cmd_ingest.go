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
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	lecternconfig "github.com/teradata-labs/lectern/pkg/config"
	"github.com/teradata-labs/lectern/pkg/corpus"
)

var (
	ingestSkipVectors bool
	ingestKeep        bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Load book summaries into the corpus database and vector index",
	Long: `Load book summaries (JSON or YAML) into the configured stores.

Database corpus backends (sqlite, postgres, mysql) are replaced with the
file's entries and their full-text index rebuilt. When retrieval.backend is
chroma the collection is reset and every entry is embedded and upserted.
The file defaults to corpus.path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := appConfig.Corpus.Path
		if len(args) == 1 {
			path = args[0]
		}
		return withComponents(func(comps *components) error {
			return runIngest(cmd.Context(), comps, cmd.OutOrStdout(), path)
		})
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestSkipVectors, "skip-vectors", false, "do not write the Chroma collection")
	ingestCmd.Flags().BoolVar(&ingestKeep, "keep", false, "upsert into the existing Chroma collection instead of resetting it")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, comps *components, out io.Writer, path string) error {
	entries, err := corpus.LoadEntries(path)
	if err != nil {
		return err
	}
	comps.logger.Info("Loaded summaries", zap.String("path", path), zap.Int("entries", len(entries)))

	wrote := false
	if comps.cfg.Corpus.Backend != lecternconfig.CorpusFile {
		store, err := comps.SQL(ctx)
		if err != nil {
			return err
		}
		n, err := store.Replace(ctx, entries)
		if err != nil {
			return fmt.Errorf("failed to write corpus: %w", err)
		}
		fmt.Fprintf(out, "Wrote %d books to the %s corpus\n", n, store.Dialect())
		wrote = true
	}

	if comps.cfg.Retrieval.Backend == lecternconfig.RetrievalChroma && !ingestSkipVectors {
		chroma, err := comps.Chroma()
		if err != nil {
			return err
		}
		if !ingestKeep {
			if err := chroma.Reset(ctx); err != nil {
				return fmt.Errorf("failed to reset collection: %w", err)
			}
		}
		n, err := chroma.Upsert(ctx, entries)
		if err != nil {
			return fmt.Errorf("failed to index summaries: %w", err)
		}
		fmt.Fprintf(out, "Indexed %d books into Chroma collection %q\n", n, comps.cfg.Retrieval.Collection)
		wrote = true
	}

	if !wrote {
		fmt.Fprintf(out, "Validated %d books; nothing to write for the file corpus\n", len(entries))
	}
	return nil
}
