package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arutha/lexhost/internal/api"
	"github.com/arutha/lexhost/internal/infrastructure/config"
	"github.com/arutha/lexhost/internal/infrastructure/influxdb"
	"github.com/arutha/lexhost/internal/infrastructure/logging"
	"github.com/arutha/lexhost/internal/infrastructure/mqtt"
	"github.com/arutha/lexhost/internal/startup"
)

// healthCheckInterval is how often optional backends are probed while serving.
const healthCheckInterval = 30 * time.Second

type serveOptions struct {
	ephemeral bool
}

func (a *app) newServeCommand() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Provision databases in the background and serve the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.ephemeral, "ephemeral", false,
		"keep the version marker in memory (provision on every launch)")
	return cmd
}

// runServe is the long-running server. It returns nil on a clean shutdown
// once the command context is cancelled.
func (a *app) runServe(cmd *cobra.Command, opts serveOptions) error {
	ctx := cmd.Context()

	cfg, path, err := a.loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, a.info.Version)
	code := a.versionCode(cfg)
	log.Info("starting lexhost",
		"version", a.info.Version,
		"version_code", code,
		"commit", a.info.Commit,
		"build_date", a.info.Date,
		"config", path,
	)

	store, err := openStateStore(ctx, cfg, opts.ephemeral, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing state database", "error", closeErr)
		}
	}()

	assets, err := openBundle(cfg, log)
	if err != nil {
		return err
	}
	gate, err := newGate(cfg, assets, store, code, log)
	if err != nil {
		return err
	}
	task := startup.NewTask(gate, code)
	task.SetLogger(log.Component("startup"))
	br := newBridge(cfg, assets, log)

	mqttClient, err := a.connectMQTT(ctx, cfg, task, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient, err := connectInfluxDB(ctx, cfg, task, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		br.SetRecorder(influxClient)
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Bridge:   br,
		Task:     task,
		UI:       uiFS(cfg, assets, log),
		MQTT:     mqttClient,
		Version:  a.info.Version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "lexhost listening on %s\n", server.Addr())

	// Provisioning begins only once the listener is up, so the UI can show
	// progress instead of a connection error.
	if err := task.Start(ctx); err != nil {
		server.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("starting provisioning: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, waitErr := task.Wait(gctx)
		if waitErr != nil {
			return nil
		}
		if st.State == startup.StateFailed {
			log.Error("databases unavailable until provisioning is retried",
				"error", st.Error,
				"retry", "POST /api/v1/provisioning/retry",
			)
		}
		return nil
	})
	g.Go(func() error {
		monitorHealth(gctx, store, mqttClient, influxClient, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		return server.Close()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("lexhost stopped")
	return nil
}

// connectMQTT connects when enabled, publishes every provisioning
// transition as a retained status, and accepts retry commands.
func (a *app) connectMQTT(ctx context.Context, cfg *config.Config, task *startup.Task, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	mqttLog := log.Component("mqtt")
	client, err := mqtt.Connect(cfg.MQTT, a.info.Version, mqttLog)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	task.OnChange(func(st startup.Status) {
		if err := client.PublishStatus(st); err != nil {
			mqttLog.Warn("publishing provisioning status", "state", st.State, "error", err)
		}
	})

	err = client.HandleCommands(func(cmd mqtt.Command) error {
		if cmd != mqtt.CommandRetry {
			return fmt.Errorf("unsupported provisioning command %q", cmd)
		}
		// The handler must not block the paho router.
		go func() {
			if _, err := task.Retry(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, startup.ErrNotFailed) {
				mqttLog.Error("provisioning retry failed", "error", err)
			}
		}()
		return nil
	})
	if err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("subscribing to provisioning commands: %w", err)
	}

	return client, nil
}

// connectInfluxDB connects when enabled and records every finished
// provisioning attempt.
func connectInfluxDB(ctx context.Context, cfg *config.Config, task *startup.Task, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.App.ID, func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)

	task.OnChange(func(st startup.Status) {
		failure := st.Error
		switch st.State {
		case startup.StateFailed:
			if failure == "" {
				failure = "unknown error"
			}
		case startup.StateReady:
			failure = ""
		default:
			return
		}
		client.RecordProvisioning(st.VersionCode, st.Copied,
			time.Duration(st.DurationMS)*time.Millisecond, failure)
	})
	return client, nil
}

// monitorHealth probes the state database and optional backends until ctx
// is done, logging each failure.
func monitorHealth(ctx context.Context, store *stateStore, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, healthCheckInterval/2)
		if store.db != nil {
			if err := store.db.HealthCheck(checkCtx); err != nil {
				log.Warn("health check failed", "component", "state_db", "error", err)
			}
		}
		if mqttClient != nil {
			if err := mqttClient.HealthCheck(checkCtx); err != nil {
				log.Warn("health check failed", "component", "mqtt", "error", err)
			}
		}
		if influxClient != nil {
			if err := influxClient.HealthCheck(checkCtx); err != nil {
				log.Warn("health check failed", "component", "influxdb", "error", err)
			}
		}
		cancel()
	}
}
