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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	lecternconfig "github.com/teradata-labs/lectern/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage lectern configuration",
	Long:  `Inspect configuration and manage secrets in the system keyring.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration (merged from all sources) with secrets masked.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return showConfig(cmd.OutOrStdout(), appConfig)
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [key-name]",
	Short: "Save a secret to the system keyring",
	Long: `Save a secret to the system keyring securely.

The secret is read from the terminal without echo, or from stdin when it is
not a terminal. Run 'lectern config list-keys' to see available key names.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret(cmd, args[0])
		if err != nil {
			return err
		}
		if err := lecternconfig.SaveSecretToKeyring(args[0], secret); err != nil {
			return fmt.Errorf("error saving to keyring: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s to system keyring\n", args[0])
		return nil
	},
}

var configDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key [key-name]",
	Short: "Delete a secret from the system keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := lecternconfig.DeleteSecretFromKeyring(args[0]); err != nil {
			return fmt.Errorf("error deleting from keyring: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s from system keyring\n", args[0])
		return nil
	},
}

var configListKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "List available secret keys",
	Run: func(cmd *cobra.Command, _ []string) {
		for _, k := range lecternconfig.SecretKeys() {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetKeyCmd, configDeleteKeyCmd, configListKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func showConfig(out io.Writer, cfg *lecternconfig.Config) error {
	fmt.Fprintf(out, "# data dir: %s\n", lecternconfig.GetDataDir())
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func readSecret(cmd *cobra.Command, keyName string) (string, error) {
	var secret string
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.OutOrStdout(), "Enter %s (input hidden): ", keyName)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("error reading input: %w", err)
		}
		secret = string(b)
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("error reading input: %w", err)
		}
		secret = line
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	return secret, nil
}
