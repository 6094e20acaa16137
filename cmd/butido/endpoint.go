package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/endpoint"
)

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Inspect and manage configured container endpoints",
}

var endpointPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping every configured endpoint",
	Args:  cobra.NoArgs,
	RunE:  runEndpointPing,
}

var endpointContainersCmd = &cobra.Command{
	Use:   "containers",
	Short: "List running containers on every configured endpoint",
	Args:  cobra.NoArgs,
	RunE:  runEndpointContainers,
}

func init() {
	endpointCmd.AddCommand(endpointPingCmd)
	endpointCmd.AddCommand(endpointContainersCmd)
}

func configuredEndpoints(a *app) ([]*endpoint.Endpoint, error) {
	endpoints := make([]*endpoint.Endpoint, 0, len(a.cfg.Docker.Endpoints))
	for _, ecfg := range a.cfg.EndpointConfigs() {
		ep, err := endpoint.New(ecfg)
		if err != nil {
			return nil, xerrors.Errorf("configuring endpoint %s: %w", ecfg.Name, err)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

func runEndpointPing(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	endpoints, err := configuredEndpoints(a)
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, ep := range endpoints {
		if err := ep.Ping(ctx, 1); err != nil {
			fmt.Printf("%s: unreachable: %v\n", ep.Name(), err)
			continue
		}
		fmt.Printf("%s: ok\n", ep.Name())
	}
	return nil
}

func runEndpointContainers(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	endpoints, err := configuredEndpoints(a)
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, ep := range endpoints {
		containers, err := ep.ListContainers(ctx)
		if err != nil {
			fmt.Printf("%s: %v\n", ep.Name(), err)
			continue
		}
		fmt.Printf("%s: %d container(s)\n", ep.Name(), len(containers))
		for _, c := range containers {
			fmt.Printf("  %s %s\n", c.ID[:12], c.Image)
		}
	}
	return nil
}
