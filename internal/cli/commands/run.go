// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package commands holds the hydroctl subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/offish/hydroplant-controller/internal/autonomy"
	"github.com/offish/hydroplant-controller/internal/bus"
	"github.com/offish/hydroplant-controller/internal/buslog"
	"github.com/offish/hydroplant-controller/internal/measurement"
	"github.com/offish/hydroplant-controller/internal/payload"
	"github.com/offish/hydroplant-controller/internal/router"
	"github.com/offish/hydroplant-controller/internal/state"
	"github.com/offish/hydroplant-controller/internal/topology"
	"github.com/offish/hydroplant-controller/pkg/config"
)

// NewRunCommand constructs the `hydroctl run` subcommand: it loads config,
// wires the topology, scheduler, persistence, and bus together, and blocks
// until the process receives a termination signal.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the hydroplant master controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = config.DefaultConfigPath()
			}
			verbose, _ := cmd.Flags().GetBool("verbose")

			return run(cmd.Context(), configPath, verbose)
		},
	}

	return cmd
}

func run(ctx context.Context, configPath string, verbose bool) error {
	log := newLogger(verbose)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	topo := topology.New()

	busClient := bus.New(bus.Config{
		Host:     cfg.Broker.Host,
		Port:     cfg.Broker.Port,
		ClientID: cfg.Broker.ClientID,
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
	}, log)

	publish := publishFunc(busClient, log)
	busLog := buslog.New(publish)

	stateStore, err := state.Open(ctx, cfg.Persistence.DSN)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer stateStore.Close()

	measureSink, err := measurement.Open(ctx, cfg.Persistence.DSN)
	if err != nil {
		return fmt.Errorf("opening measurement sink: %w", err)
	}
	defer measureSink.Close()

	schedCfg := autonomy.Config{
		TickInterval:         secondsToDuration(cfg.Autonomy.TickIntervalSeconds),
		IntervalCheckTimeout: secondsToDuration(cfg.Autonomy.IntervalCheckSeconds),
		DayWindow: autonomy.DayWindow{
			StartHour: cfg.Autonomy.DayWindow.StartHour,
			EndHour:   cfg.Autonomy.DayWindow.EndHour,
		},
	}
	sched := autonomy.New(schedCfg, topo, publish)

	rtr := router.New(busClient, topo, sched, stateStore, measureSink, busLog, log, cfg.Autonomy.ReconnectRestore)

	if err := busClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer busClient.Disconnect(context.Background())

	if err := rtr.Start(ctx); err != nil {
		return fmt.Errorf("starting router: %w", err)
	}

	log.Info().Str("broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port)).Msg("hydroplant controller running")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sched.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("controller loop: %w", err)
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// publishFunc adapts a bus.Client into an autonomy.Publisher / buslog.Publisher,
// stripping transport-only keys and marshaling to JSON before handing off to
// the broker connection.
func publishFunc(busClient bus.Client, log zerolog.Logger) func(topic string, data payload.Payload) {
	return func(topic string, data payload.Payload) {
		var raw []byte
		var err error
		if data != nil {
			raw, err = json.Marshal(data.WithoutTransportKeys())
			if err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("encoding outbound payload")
				return
			}
		}

		if err := busClient.Publish(context.Background(), topic, raw); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("publishing")
		}
	}
}
