package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"info-collecte/internal/config"
	"info-collecte/internal/dedup"
	"info-collecte/internal/firestore"
	"info-collecte/internal/hass"
	"info-collecte/internal/logger"
	"info-collecte/internal/mqtt"
	"info-collecte/internal/pipeline"
	"info-collecte/internal/publish"
	"info-collecte/internal/scraper"
	"info-collecte/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the calendar and publish the next collection dates",
	Long: `Run performs one complete cycle: render the Info-Collecte page of the
address, extract the collection dates, publish retained MQTT discovery
sensors, create remote calendar events for newly seen dates and rewrite the
iCalendar file.

The process exits non-zero when the run failed; the failure is still
published on the status sensor.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()

	// Publish transport
	flags.String("mqtt-host", "core-mosquitto", "MQTT broker host")
	flags.Int("mqtt-port", 1883, "MQTT broker port")
	flags.String("mqtt-user", "", "MQTT username")
	flags.String("mqtt-pass", "", "MQTT password")
	flags.String("mqtt-client-id", "", "MQTT client id (default: generated)")
	flags.String("topic-base", publish.DefaultTopicBase, "discovery topic prefix")

	// Remote calendar
	flags.String("hass-url", "", "Home Assistant base URL")
	flags.String("hass-token", "", "Home Assistant long-lived access token")
	flags.String("calendar-id", "", "calendar entity receiving events, e.g. calendar.collectes")

	// Outputs
	flags.String("ics", "", "iCalendar file rewritten after each successful run")
	flags.String("state-dir", "state", "directory of the notification record")
	flags.String("state-bucket", "", "GCS bucket of the notification record (overrides --state-dir)")
	flags.String("state-prefix", "", "object prefix inside --state-bucket")
	flags.String("archive-project", "", "GCP project of the Firestore archive (empty disables)")

	_ = viper.BindPFlag("mqtt.host", flags.Lookup("mqtt-host"))
	_ = viper.BindPFlag("mqtt.port", flags.Lookup("mqtt-port"))
	_ = viper.BindPFlag("mqtt.user", flags.Lookup("mqtt-user"))
	_ = viper.BindPFlag("mqtt.pass", flags.Lookup("mqtt-pass"))
	_ = viper.BindPFlag("mqtt.client_id", flags.Lookup("mqtt-client-id"))
	_ = viper.BindPFlag("mqtt.topic_base", flags.Lookup("topic-base"))
	_ = viper.BindPFlag("remote.url", flags.Lookup("hass-url"))
	_ = viper.BindPFlag("remote.token", flags.Lookup("hass-token"))
	_ = viper.BindPFlag("remote.calendar_id", flags.Lookup("calendar-id"))
	_ = viper.BindPFlag("ics_path", flags.Lookup("ics"))
	_ = viper.BindPFlag("state.dir", flags.Lookup("state-dir"))
	_ = viper.BindPFlag("state.bucket", flags.Lookup("state-bucket"))
	_ = viper.BindPFlag("state.prefix", flags.Lookup("state-prefix"))
	_ = viper.BindPFlag("archive.project_id", flags.Lookup("archive-project"))
}

func runRun(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		log.Errorw("invalid configuration", logger.FieldError, err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := newSource(cfg, log)
	if err != nil {
		return err
	}

	st, closeStore, err := newStore(ctx, cfg.State, log)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := pipeline.Deps{
		Source:     src,
		Classifier: scraper.NewClassifier(cfg.Categories),
		Dedup:      dedup.New(st, cfg.State.Key, log),
		Builder:    publish.NewBuilder(publish.Options{TopicBase: cfg.MQTT.TopicBase}),
		Publisher: mqtt.New(mqtt.Config{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			User:     cfg.MQTT.User,
			Password: cfg.MQTT.Pass,
			ClientID: cfg.MQTT.ClientID,
		}, log),
	}
	if cfg.Remote.Enabled() {
		deps.Events = hass.NewClient(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.Timeout)
	}
	if cfg.Archive.Enabled() {
		fs, err := firestore.New(ctx, cfg.Archive.ProjectID, cfg.Archive.Collection)
		if err != nil {
			return err
		}
		defer fs.Close()
		deps.Archive = fs
		log.Infow("archiving to firestore", "project", cfg.Archive.ProjectID, "collection", cfg.Archive.Collection)
	}

	ctrl := pipeline.New(deps, pipeline.Options{
		Address:    cfg.Address,
		CalendarID: cfg.Remote.CalendarID,
		ICSPath:    cfg.ICSPath,
	}, log)

	res, err := ctrl.Run(ctx)
	if err != nil {
		return err
	}
	if !res.Status.OK() {
		return errors.Newf("run %s failed: %s", res.RunID, res.Status.Message())
	}
	return nil
}

// newStore opens the GCS bucket when configured, the local directory
// otherwise.
func newStore(ctx context.Context, cfg config.StateConfig, log *zap.SugaredLogger) (store.Store, func(), error) {
	if cfg.Bucket != "" {
		gcs, err := store.NewGCS(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, nil, err
		}
		log.Infow("notification record in GCS", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return gcs, func() { _ = gcs.Close() }, nil
	}

	local, err := store.NewLocal(cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	log.Debugw("notification record on disk", logger.FieldPath, cfg.Dir)
	return local, func() {}, nil
}
