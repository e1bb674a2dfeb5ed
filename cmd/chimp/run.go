package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/chimp-relay/internal/actuator"
	"github.com/nerrad567/chimp-relay/internal/credentials"
	"github.com/nerrad567/chimp-relay/internal/history"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/database"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/logging"
	"github.com/nerrad567/chimp-relay/internal/relay"
	"github.com/nerrad567/chimp-relay/internal/speech"
	"github.com/nerrad567/chimp-relay/migrations"
)

// runRelay builds the collaborators named in cfg and performs one run.
//
// History and telemetry are best effort: if the database or InfluxDB cannot
// be reached the run continues without them.
//
// Parameters:
//   - ctx: Cancelled by SIGINT/SIGTERM
//   - cfg: Validated configuration
//
// Returns:
//   - error: The run's fatal error, or nil
func runRelay(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting chimp",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	driver := actuator.New(cfg.Actuator, log.Component("actuator"))
	defer func() {
		if closeErr := driver.Close(); closeErr != nil {
			log.Error("error closing actuator", "error", closeErr)
		}
	}()

	deps := relay.Deps{
		Config:   cfg,
		Log:      log,
		Driver:   driver,
		Timeouts: relay.TimeoutsFromConfig(cfg),
	}

	if cfg.Speech.Enabled {
		broker, err := credentials.NewBroker(cfg.Credentials, cfg.MQTT,
			credentials.WithLogger(log.Component("credentials")))
		if err != nil {
			return fmt.Errorf("configuring credentials: %w", err)
		}
		deps.Speaker = speech.New(cfg.Speech, credentials.NewProvider(broker))
		log.Info("speech enabled", "region", cfg.Speech.Region, "voice", cfg.Speech.VoiceID)
	}

	if cfg.History.Enabled {
		db, err := openHistory(ctx, cfg.History)
		if err != nil {
			log.Warn("history unavailable, continuing without it", "path", cfg.History.Path, "error", err)
		} else {
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					log.Error("error closing database", "error", closeErr)
				}
			}()
			deps.History = history.NewSQLiteRepository(db.DB)
			log.Info("history enabled", "path", db.Path())
		}
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB, map[string]string{
			"client_id": cfg.MQTT.ClientID,
		})
		if err != nil {
			log.Warn("InfluxDB unavailable, continuing without telemetry", "url", cfg.InfluxDB.URL, "error", err)
		} else {
			defer func() {
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			deps.Telemetry = influxClient
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	res, err := relay.Run(ctx, deps)
	if err != nil {
		log.Error("run failed", "run_id", res.RunID, "messages", res.Messages, "error", err)
		return err
	}

	log.Info("chimp stopped", "run_id", res.RunID, "messages", res.Messages, "duration", res.Duration)
	return nil
}

// openHistory opens the history database and applies pending migrations.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
