// internal/events/mqttsink/mqttsink.go
package mqttsink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/events"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
)

// Publisher is the part of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Options for Connect.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// Connect dials the broker. The "<topic>/status" topic carries a retained
// online/offline flag, with offline registered as the will.
func Connect(o Options, log zerolog.Logger) (mqtt.Client, error) {
	log = log.With().Str("component", "mqtt").Logger()
	status := o.Topic + "/status"

	opts := mqtt.NewClientOptions().AddBroker(o.Broker).SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(3 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetWill(status, "offline", 0, true)
	opts.OnConnect = func(c mqtt.Client) {
		log.Info().Str("broker", o.Broker).Msg("mqtt connected")
		c.Publish(status, 0, true, "online").Wait()
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", o.Broker, token.Error())
	}
	return c, nil
}

// Disconnect publishes offline and closes the client.
func Disconnect(c mqtt.Client, topic string) {
	c.Publish(topic+"/status", 0, true, "offline").WaitTimeout(time.Second)
	c.Disconnect(250)
}

// Sink mirrors coordinator events to MQTT.
//
//	<topic>/event/<kind>     every event, JSON, not retained
//	<topic>/state/<device>   latest readings per device, JSON, retained
type Sink struct {
	pub   Publisher
	topic string
	log   zerolog.Logger
}

func New(pub Publisher, topic string, log zerolog.Logger) *Sink {
	return &Sink{
		pub:   pub,
		topic: topic,
		log:   log.With().Str("component", "mqtt").Logger(),
	}
}

type wireEvent struct {
	Kind    events.Kind `json:"kind"`
	At      time.Time   `json:"at"`
	Port    string      `json:"port,omitempty"`
	Device  string      `json:"device,omitempty"`
	DoorKey string      `json:"doorKey,omitempty"`
	Attempt string      `json:"attempt,omitempty"`
	Phase   string      `json:"phase,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Error   string      `json:"error,omitempty"`
	Payload any         `json:"payload,omitempty"`
}

// Emit publishes without waiting for the broker.
func (s *Sink) Emit(ev events.Event) {
	w := wireEvent{
		Kind:    ev.Kind,
		At:      ev.At,
		Port:    ev.Port,
		Device:  ev.Device,
		DoorKey: ev.DoorKey,
		Attempt: ev.Attempt,
		Phase:   ev.Phase,
		Reason:  ev.Reason,
		Payload: ev.Payload,
	}
	if w.At.IsZero() {
		w.At = time.Now()
	}
	if ev.Err != nil {
		w.Error = ev.Err.Error()
	}

	if st, ok := ev.Payload.(registers.State); ok {
		readings := st.Readings()
		w.Payload = readings
		if ev.Device != "" {
			s.publish(s.topic+"/state/"+ev.Device, true, readings)
		}
	}

	s.publish(s.topic+"/event/"+string(ev.Kind), false, w)
}

func (s *Sink) publish(topic string, retained bool, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("encode failed")
		return
	}
	s.pub.Publish(topic, 0, retained, b)
}
