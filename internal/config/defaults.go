package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"info-collecte/internal/dedup"
	"info-collecte/internal/publish"
	"info-collecte/internal/scraper"
)

// EnvPrefix is prepended to every environment variable, e.g. COLLECTE_MQTT_HOST.
const EnvPrefix = "COLLECTE"

// SetDefaults configures default values for all configuration options.
// Keys without a meaningful default are registered empty so that
// AutomaticEnv can resolve them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("address", "")
	v.SetDefault("site_url", scraper.DefaultSiteURL)
	v.SetDefault("fetch_mode", string(scraper.ModeChrome))
	v.SetDefault("fetch_timeout", 25*time.Second)
	v.SetDefault("chrome_path", "")
	v.SetDefault("cache_dir", "")
	v.SetDefault("cache_ttl", time.Duration(0)) // disabled
	v.SetDefault("ics_path", "")

	// Publish transport
	v.SetDefault("mqtt.host", "core-mosquitto")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.user", "")
	v.SetDefault("mqtt.pass", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic_base", publish.DefaultTopicBase)

	// Remote calendar service
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.calendar_id", "")
	v.SetDefault("remote.timeout", 10*time.Second)

	// Dedup state
	v.SetDefault("state.dir", "state")
	v.SetDefault("state.bucket", "")
	v.SetDefault("state.prefix", "")
	v.SetDefault("state.key", dedup.DefaultKey)

	// Firestore archive
	v.SetDefault("archive.project_id", "")
	v.SetDefault("archive.collection", "collectes")
}

// BindEnv lets COLLECTE_-prefixed environment variables override any key;
// nested keys use underscores (mqtt.host becomes COLLECTE_MQTT_HOST).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
