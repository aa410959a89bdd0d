package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cloudshipai/workflowcore/internal/config"
	"github.com/cloudshipai/workflowcore/pkg/controller"
	"github.com/cloudshipai/workflowcore/pkg/eventstream"
	"github.com/cloudshipai/workflowcore/pkg/transport"
	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

var (
	runParams []string

	runCmd = &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Submit a workflow to the platform and stream its execution events",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
)

func init() {
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "workflow parameter in name=value form, may be repeated")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, afero.NewOsFs())
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	wf, err := workflow.LoadYAML(data)
	if err != nil {
		return err
	}

	params, err := parseParams(runParams)
	if err != nil {
		return err
	}

	telemetry, err := controller.NewTelemetry()
	if err != nil {
		return fmt.Errorf("set up telemetry: %w", err)
	}

	client := transport.New(transport.Config{
		Endpoint:          cfg.Endpoint,
		Credential:        cfg.Credential,
		ConnectTimeout:    cfg.ConnectTimeout,
		RequestTimeout:    cfg.RequestTimeout,
		MaxConnectRetries: cfg.MaxConnectRetries,
	}, nil)
	ctrl := controller.New(client, telemetry)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	events, result, err := ctrl.Execute(ctx, wf, controller.Options{
		Params:               params,
		WallClockTimeout:     cfg.ExecutionTimeout,
		EventChannelCapacity: cfg.EventChannelCapacity,
		LineBufferMax:        cfg.LineBufferMax,
	})
	if err != nil {
		return err
	}

	for e := range events {
		printEvent(cmd, e.Kind, e.Payload)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "outputs: %v\n", result.Outputs)
	return nil
}

func printEvent(cmd *cobra.Command, kind eventstream.Kind, payload map[string]any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", payload))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s %s\n", time.Now().Format(time.RFC3339), kind, encoded)
}

func parseParams(raw []string) (map[string]string, error) {
	params := map[string]string{}
	for _, p := range raw {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("--param %q must be in name=value form", p)
		}
		params[name] = value
	}
	return params, nil
}
