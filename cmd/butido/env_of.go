package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var envOfCmd = &cobra.Command{
	Use:   "env-of <name> <version-constraint>",
	Short: "Print the environment declared by a package",
	Args:  cobra.ExactArgs(2),
	RunE:  runEnvOf,
}

func runEnvOf(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	pkg, err := findPackage(a, args[0], args[1])
	if err != nil {
		return err
	}
	if len(pkg.Environment) == 0 {
		fmt.Println("No environment")
		return nil
	}
	for k, v := range pkg.Environment {
		fmt.Printf("%s = %q\n", k, v)
	}
	return nil
}
