// Package publish turns a run outcome into retained discovery messages and
// an iCalendar document. It performs no I/O besides WriteCalendarFile.
package publish

import (
	"encoding/json"
	"time"

	"info-collecte/internal/model"
)

const (
	// StateError is the value of every category sensor after a failed run.
	StateError = "error"
	// StateUnavailable is the value of a category with no upcoming date.
	StateUnavailable = "N/A"

	DefaultTopicBase    = "homeassistant/sensor/ville_qc_collecte"
	DefaultStatusSensor = "statut"
)

// Message is one retained publication.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// Device groups every sensor under one logical device.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

type sensorConfig struct {
	Name                string `json:"name"`
	StateTopic          string `json:"state_topic"`
	UniqueID            string `json:"unique_id"`
	JSONAttributesTopic string `json:"json_attributes_topic,omitempty"`
	Icon                string `json:"icon,omitempty"`
	Device              Device `json:"device"`
}

// Options configures topic layout and device metadata.
type Options struct {
	TopicBase      string
	UniqueIDPrefix string
	StatusSensor   string
	Device         Device
}

// DefaultOptions mirrors the topics and ids already registered by existing
// installations.
func DefaultOptions() Options {
	return Options{
		TopicBase:      DefaultTopicBase,
		UniqueIDPrefix: "ville_qc_",
		StatusSensor:   DefaultStatusSensor,
		Device: Device{
			Identifiers:  []string{"ville_qc_collecte_device"},
			Name:         "VilleQCCollecte",
			Manufacturer: "Ville de Québec",
		},
	}
}

// Input is everything a run contributes to its publications.
type Input struct {
	Status      model.RunStatus
	Schedule    model.Schedule
	Categories  []model.Category
	RunID       string
	GeneratedAt time.Time
}

// Builder builds discovery messages.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder. Empty option fields take their defaults.
func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.TopicBase == "" {
		opts.TopicBase = def.TopicBase
	}
	if opts.UniqueIDPrefix == "" {
		opts.UniqueIDPrefix = def.UniqueIDPrefix
	}
	if opts.StatusSensor == "" {
		opts.StatusSensor = def.StatusSensor
	}
	if len(opts.Device.Identifiers) == 0 {
		opts.Device = def.Device
	}
	return &Builder{opts: opts}
}

// Build returns the status sensor messages followed by one message group per
// category, in the order of in.Categories. After a failure every category
// carries StateError with empty attributes.
func (b *Builder) Build(in Input) ([]Message, error) {
	var msgs []Message

	statusAttrs := map[string]string{
		"message":    in.Status.Message(),
		"run_id":     in.RunID,
		"updated_at": in.GeneratedAt.UTC().Format(time.RFC3339),
	}
	group, err := b.sensor(b.opts.StatusSensor, in.Status.Tag(), statusAttrs, "mdi:list-status")
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, group...)

	for _, cat := range in.Categories {
		var (
			state string
			attrs interface{}
		)
		if !in.Status.OK() {
			state = StateError
			attrs = struct{}{}
		} else {
			cs := in.Schedule[cat]
			state = cs.NextISO()
			if state == "" {
				state = StateUnavailable
			}
			attrs = map[string][]string{"dates": cs.DateStrings()}
		}

		group, err := b.sensor(string(cat), state, attrs, "mdi:trash-can")
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, group...)
	}
	return msgs, nil
}

// UniqueID is the stable discovery id of a sensor.
func (b *Builder) UniqueID(sensor string) string {
	return b.opts.UniqueIDPrefix + sensor
}

// sensor builds the attributes, config and state messages of one sensor, in
// that order so the state never arrives before its configuration.
func (b *Builder) sensor(name, state string, attrs interface{}, icon string) ([]Message, error) {
	base := b.opts.TopicBase + "/" + name
	stateTopic := base + "/state"
	attrTopic := base + "/attributes"

	attrPayload, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}

	cfg := sensorConfig{
		Name:                "Collecte " + name,
		StateTopic:          stateTopic,
		UniqueID:            b.UniqueID(name),
		JSONAttributesTopic: attrTopic,
		Icon:                icon,
		Device:              b.opts.Device,
	}
	cfgPayload, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	return []Message{
		{Topic: attrTopic, Payload: attrPayload, Retain: true},
		{Topic: base + "/config", Payload: cfgPayload, Retain: true},
		{Topic: stateTopic, Payload: []byte(state), Retain: true},
	}, nil
}
