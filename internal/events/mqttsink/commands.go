// internal/events/mqttsink/commands.go
package mqttsink

import (
	"context"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/delivery"
)

// Subscriber is the part of mqtt.Client used for commands.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Commander executes kiosk commands.
type Commander interface {
	Deliver(ctx context.Context, doorKey string) (delivery.Receipt, error)
	ApplyAccessPolicy(ctx context.Context, userLoggedIn bool) error
}

// ListenCommands subscribes to
//
//	<topic>/cmd/deliver   payload: door key ("door1".."door4")
//	<topic>/cmd/access    payload: "login" or "logout"
//
// Outcomes are reported through the event topics. Commands run on their own
// goroutine so the paho callback returns at once.
func ListenCommands(ctx context.Context, sub Subscriber, topic string, cmd Commander, log zerolog.Logger) error {
	log = log.With().Str("component", "mqtt").Logger()

	handlers := map[string]mqtt.MessageHandler{
		topic + "/cmd/deliver": func(_ mqtt.Client, m mqtt.Message) {
			door := strings.TrimSpace(string(m.Payload()))
			go func() {
				if _, err := cmd.Deliver(ctx, door); err != nil {
					log.Warn().Err(err).Str("door", door).Msg("deliver command failed")
				}
			}()
		},
		topic + "/cmd/access": func(_ mqtt.Client, m mqtt.Message) {
			var loggedIn bool
			switch p := strings.TrimSpace(string(m.Payload())); p {
			case "login":
				loggedIn = true
			case "logout":
			default:
				log.Warn().Str("payload", p).Msg("unknown access command")
				return
			}
			go func() {
				if err := cmd.ApplyAccessPolicy(ctx, loggedIn); err != nil {
					log.Warn().Err(err).Bool("loggedIn", loggedIn).Msg("access command failed")
				}
			}()
		},
	}

	for t, h := range handlers {
		if token := sub.Subscribe(t, 1, h); token.Wait() && token.Error() != nil {
			return fmt.Errorf("mqtt: subscribe %s: %w", t, token.Error())
		}
	}
	return nil
}
