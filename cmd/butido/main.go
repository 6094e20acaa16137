// Command butido builds Linux packages by dispatching their build scripts
// to Docker container endpoints, tracking every submission, job and
// produced artifact in Postgres (spec.md §1).
//
// Subcommand layout mirrors the original per-command source files: one
// file per verb, each a thin cobra.Command wired to internal/orchestrator,
// internal/repository or internal/dbstore.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/butido/butido"
	"github.com/butido/butido/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "butido",
	Short:         "A build orchestrator for Linux packages",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to butido.toml (default: XDG search path)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(findArtifactCmd)
	rootCmd.AddCommand(treeOfCmd)
	rootCmd.AddCommand(whatDependsCmd)
	rootCmd.AddCommand(dependenciesOfCmd)
	rootCmd.AddCommand(versionsOfCmd)
	rootCmd.AddCommand(envOfCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(endpointCmd)
	rootCmd.AddCommand(sourceCmd)
}

func loadConfig() (*config.Configuration, error) {
	return config.Load(configPath)
}

func main() {
	err := rootCmd.Execute()
	if exitErr := butido.RunAtExit(); exitErr != nil {
		fmt.Fprintln(os.Stderr, "butido: cleanup:", exitErr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "butido:", err)
		os.Exit(1)
	}
}
