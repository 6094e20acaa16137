package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido"
	"github.com/butido/butido/internal/orchestrator"
	"github.com/butido/butido/internal/pkgid"
	"github.com/butido/butido/internal/trc"
)

var (
	buildImage string
	buildEnv   []string
	buildTrace bool
)

var buildCmd = &cobra.Command{
	Use:   "build <name> <version-constraint>",
	Short: "Submit a package and its dependency tree for building",
	Args:  cobra.ExactArgs(2),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildImage, "image", "", "requested container image name")
	buildCmd.Flags().StringArrayVar(&buildEnv, "env", nil, "additional NAME=VALUE environment passed through to jobs")
	buildCmd.Flags().BoolVar(&buildTrace, "trace", false, "record a chrome://tracing job timeline")
}

func runBuild(cmd *cobra.Command, args []string) error {
	name, err := pkgid.ParseName(args[0])
	if err != nil {
		return xerrors.Errorf("invalid package name %q: %w", args[0], err)
	}
	constraint, err := pkgid.ParseConstraint(args[1])
	if err != nil {
		return xerrors.Errorf("invalid version constraint %q: %w", args[1], err)
	}
	env, err := parseEnvFlags(buildEnv)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	orch, err := a.newOrchestrator()
	if err != nil {
		return err
	}

	if buildTrace {
		traceFile, err := trc.Enable("build")
		if err != nil {
			return xerrors.Errorf("enabling job trace: %w", err)
		}
		defer traceFile.Close()
		fmt.Printf("recording job trace to %s\n", traceFile.Name())
	}

	ctx, cancel := butido.InterruptibleContext()
	defer cancel()

	result, err := orch.Submit(ctx, orchestrator.SubmissionRequest{
		PackageName: name,
		Constraint:  constraint,
		Image:       buildImage,
		Env:         env,
	})
	if err != nil {
		return xerrors.Errorf("submitting build: %w", err)
	}

	for id, outcome := range result.Outcomes {
		if outcome.Error != nil {
			fmt.Printf("FAIL %s: %v\n", id, outcome.Error)
			continue
		}
		fmt.Printf("OK   %s\n", id)
		for _, p := range outcome.Paths {
			fmt.Printf("       %s\n", p)
		}
	}

	if !result.Success() {
		return xerrors.New("one or more jobs failed")
	}
	return nil
}

func parseEnvFlags(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := splitKV(kv)
		if !ok {
			return nil, xerrors.Errorf("invalid --env value %q, expected NAME=VALUE", kv)
		}
		out[name] = value
	}
	return out, nil
}

func splitKV(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
