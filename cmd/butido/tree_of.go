package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/condition"
	"github.com/butido/butido/internal/depgraph"
	"github.com/butido/butido/internal/pkgid"
)

var (
	treeOfImage string
	treeOfEnv   []string
)

var treeOfCmd = &cobra.Command{
	Use:   "tree-of <name> <version-constraint>",
	Short: "Print the dependency tree of a package",
	Args:  cobra.ExactArgs(2),
	RunE:  runTreeOf,
}

func init() {
	treeOfCmd.Flags().StringVar(&treeOfImage, "image", "", "requested container image (affects conditional dependencies)")
	treeOfCmd.Flags().StringArrayVar(&treeOfEnv, "env", nil, "additional NAME=VALUE used to evaluate conditional dependencies")
}

func runTreeOf(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	root, err := findPackage(a, args[0], args[1])
	if err != nil {
		return err
	}

	env, err := parseEnvFlags(treeOfEnv)
	if err != nil {
		return err
	}
	data := condition.Data{ImageName: treeOfImage, Env: envPairsFromMap(env)}

	dag, err := depgraph.Build(a.repo, root, data)
	if err != nil {
		return xerrors.Errorf("building dependency tree for %s: %w", root.ID(), err)
	}

	printTree(dag, root.ID(), map[pkgid.ID]bool{}, 0)
	return nil
}

func printTree(dag *depgraph.Dag, id pkgid.ID, visiting map[pkgid.ID]bool, depth int) {
	fmt.Printf("%s%s\n", strings.Repeat("  ", depth), id)
	if visiting[id] {
		return
	}
	visiting[id] = true
	for _, edge := range dag.DependenciesOf(id) {
		fmt.Printf("%s[%s]\n", strings.Repeat("  ", depth+1), edge.Kind)
		printTree(dag, edge.To.ID(), visiting, depth+1)
	}
}

func envPairsFromMap(env map[string]string) []condition.Env {
	out := make([]condition.Env, 0, len(env))
	for k, v := range env {
		out = append(out, condition.Env{Name: k, Value: v})
	}
	return out
}
