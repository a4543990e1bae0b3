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
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/internal/log"
	"github.com/teradata-labs/lectern/internal/version"
	lecternconfig "github.com/teradata-labs/lectern/pkg/config"
)

var (
	cfgFile   string
	appConfig *lecternconfig.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Lectern - grounded book recommendations",
	Long: `Lectern recommends one book from a curated corpus of summaries.

Candidates come from similarity search over the corpus, a language model
picks one of them, and the answer is enriched with Open Library metadata.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $LECTERN_DATA_DIR/lectern.yaml)")

	// Server flags
	rootCmd.PersistentFlags().Int("port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().String("host", "0.0.0.0", "HTTP server host")

	// LLM flags
	rootCmd.PersistentFlags().String("llm-provider", "openai", "LLM provider (openai, anthropic)")
	rootCmd.PersistentFlags().String("openai-model", "gpt-4o-mini", "OpenAI chat model")
	rootCmd.PersistentFlags().String("anthropic-model", "claude-3-5-haiku-latest", "Anthropic model")
	rootCmd.PersistentFlags().Float64("temperature", 0.2, "LLM temperature")

	// Retrieval and corpus flags
	rootCmd.PersistentFlags().String("retrieval", "chroma", "Candidate search backend (chroma, fts)")
	rootCmd.PersistentFlags().String("chroma-url", "http://localhost:8000", "Chroma server URL")
	rootCmd.PersistentFlags().String("corpus", "file", "Corpus backend (file, sqlite, postgres, mysql)")
	rootCmd.PersistentFlags().String("corpus-path", "data/book_summaries.json", "Book summaries file")
	rootCmd.PersistentFlags().String("corpus-dsn", "", "Corpus database DSN (or use keyring/env)")
	rootCmd.PersistentFlags().String("mismatch-policy", "substitute", "What to do when the model proposes a non-candidate (substitute, abstain)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))

	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.openai_model", rootCmd.PersistentFlags().Lookup("openai-model"))
	_ = viper.BindPFlag("llm.anthropic_model", rootCmd.PersistentFlags().Lookup("anthropic-model"))
	_ = viper.BindPFlag("llm.temperature", rootCmd.PersistentFlags().Lookup("temperature"))

	_ = viper.BindPFlag("retrieval.backend", rootCmd.PersistentFlags().Lookup("retrieval"))
	_ = viper.BindPFlag("retrieval.chroma_url", rootCmd.PersistentFlags().Lookup("chroma-url"))
	_ = viper.BindPFlag("corpus.backend", rootCmd.PersistentFlags().Lookup("corpus"))
	_ = viper.BindPFlag("corpus.path", rootCmd.PersistentFlags().Lookup("corpus-path"))
	_ = viper.BindPFlag("corpus.dsn", rootCmd.PersistentFlags().Lookup("corpus-dsn"))
	_ = viper.BindPFlag("recommend.mismatch_policy", rootCmd.PersistentFlags().Lookup("mismatch-policy"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads .env, the config file and ENV variables.
func initConfig() {
	// A missing .env is fine; the real environment still applies.
	_ = godotenv.Load()

	var err error
	appConfig, err = lecternconfig.Load(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// setup validates the configuration and builds the logger and components.
func setup() (*components, error) {
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := log.New(appConfig.Logging.Level, appConfig.Logging.Format, appConfig.Logging.File)
	if err != nil {
		return nil, err
	}
	log.SetLogger(logger)
	logger.Debug("Configuration loaded",
		zap.String("llm_provider", appConfig.LLM.Provider),
		zap.String("retrieval", appConfig.Retrieval.Backend),
		zap.String("corpus", appConfig.Corpus.Backend))

	return newComponents(appConfig, logger), nil
}
