package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/voxrec/internal/recorder"
)

// SessionTopicSuffix is appended to the base topic for session events.
const SessionTopicSuffix = "/session"

// SessionMessage is the JSON payload published for each transition.
type SessionMessage struct {
	Event      string    `json:"event"`
	SessionID  string    `json:"sessionId"`
	Time       time.Time `json:"time"`
	SoundLevel float64   `json:"soundLevel"`
	Device     string    `json:"device,omitempty"`
	File       string    `json:"file"`
	Format     string    `json:"format"`

	// Set on idle events only.
	Reason          string  `json:"reason,omitempty"`
	Recorded        *bool   `json:"recorded,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Frames          uint64  `json:"frames,omitempty"`
	Cause           string  `json:"cause,omitempty"`
}

// NewSessionMessage builds the payload for ev.
func NewSessionMessage(ev recorder.Event) SessionMessage {
	msg := SessionMessage{
		Event:      string(ev.Type),
		SessionID:  ev.SessionID,
		Time:       ev.Time,
		SoundLevel: ev.Level,
		Device:     ev.Config.DeviceName,
		File:       ev.Config.OutputPath,
		Format:     ev.Config.Format(),
	}
	if s := ev.Summary; s != nil {
		recorded := s.Recorded
		msg.Reason = string(s.Reason)
		msg.Recorded = &recorded
		msg.DurationSeconds = s.Duration.Seconds()
		msg.Frames = s.FramesWritten
		msg.Cause = s.Cause
		msg.File = s.Config.OutputPath
		msg.Format = s.Config.Format()
	}
	return msg
}

// Publisher forwards session events to MQTT.
type Publisher struct {
	client  Client
	topic   string
	timeout time.Duration
}

// NewPublisher creates a publisher writing to <baseTopic>/session.
func NewPublisher(client Client, baseTopic string) *Publisher {
	return &Publisher{
		client:  client,
		topic:   baseTopic + SessionTopicSuffix,
		timeout: DefaultConfig().PublishTimeout,
	}
}

// Topic returns the session topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// Name implements events.EventConsumer.
func (p *Publisher) Name() string {
	return "mqtt-publisher"
}

// ProcessEvent publishes ev.
func (p *Publisher) ProcessEvent(ev recorder.Event) error {
	payload, err := json.Marshal(NewSessionMessage(ev))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.client.Publish(ctx, p.topic, payload)
}
