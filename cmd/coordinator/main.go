// cmd/coordinator/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/config"
	"github.com/tamzrod/kiosk-coordinator/internal/coordinator"
	"github.com/tamzrod/kiosk-coordinator/internal/discovery"
	"github.com/tamzrod/kiosk-coordinator/internal/events"
	"github.com/tamzrod/kiosk-coordinator/internal/events/mqttsink"
	"github.com/tamzrod/kiosk-coordinator/internal/metrics"
	"github.com/tamzrod/kiosk-coordinator/internal/port"
	"github.com/tamzrod/kiosk-coordinator/internal/port/rtu"
	"github.com/tamzrod/kiosk-coordinator/internal/store"
	"github.com/tamzrod/kiosk-coordinator/internal/upload"
)

func main() {
	cfgPath := flag.String("config", "kiosk.yaml", "Path to the coordinator config")
	identify := flag.Bool("identify", false, "Probe serial ports, record device kinds and exit")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		log = log.Level(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Store + port resolution
	// --------------------

	st, err := store.Open(ctx, cfg.Store.Path, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store open failed")
	}
	defer st.Close()

	if err := resolvePorts(ctx, cfg, st, *identify, log); err != nil {
		log.Fatal().Err(err).Msg("device ports unresolved")
	}
	if *identify {
		log.Info().Str("putter", cfg.Putter.Port).Str("weight", cfg.Weight.Port).Msg("identification done")
		return
	}

	// --------------------
	// Observers
	// --------------------

	m := metrics.New()
	sinks := []events.Sink{m}

	var mqttClient mqtt.Client
	if cfg.MQTT != nil {
		c, err := mqttsink.Connect(mqttsink.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect failed")
		}
		defer mqttsink.Disconnect(c, cfg.MQTT.Topic)
		mqttClient = c
		sinks = append(sinks, mqttsink.New(c, cfg.MQTT.Topic, log))
	}

	// --------------------
	// Coordinator
	// --------------------

	up := upload.New(upload.Config{
		BaseURL:    cfg.Upload.BaseURL,
		DeviceCode: cfg.Upload.DeviceCode,
		Timeout:    time.Duration(cfg.Upload.TimeoutMs) * time.Millisecond,
		Token:      func() string { return cfg.Upload.Token },
	}, log)

	coord, err := coordinator.New(*cfg, coordinator.Deps{
		Transport: rtu.Transport{},
		Uploader:  up,
		Local:     st,
		Sinks:     sinks,
		OnHealth:  m.ObserveHealth,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("coordinator build failed")
	}

	if err := coord.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("coordinator start failed")
	}
	defer coord.Shutdown()

	// nobody is logged in at boot
	if err := coord.ApplyAccessPolicy(ctx, false); err != nil {
		log.Warn().Err(err).Msg("initial access policy not applied")
	}

	if mqttClient != nil {
		if err := mqttsink.ListenCommands(ctx, mqttClient, cfg.MQTT.Topic, coord, log); err != nil {
			log.Error().Err(err).Msg("mqtt commands unavailable")
		}
	}

	// --------------------
	// Metrics endpoint
	// --------------------

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("metrics endpoint up")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
}

// resolvePorts fills device ports missing from the config: first from the
// store, then by probing the host's serial ports. With force, stored
// assignments are ignored and every configured-empty kind is probed again.
func resolvePorts(ctx context.Context, cfg *config.Config, st *store.Store, force bool, log zerolog.Logger) error {
	devices := map[string]*config.DeviceConfig{
		store.KindPutter: &cfg.Putter,
		store.KindWeight: &cfg.Weight,
	}

	missing := false
	for kind, d := range devices {
		if d.Port != "" {
			continue
		}
		if force {
			if err := st.ForgetPort(ctx, kind); err != nil {
				return err
			}
		}
		p, err := st.PortForKind(ctx, kind)
		if err != nil {
			return err
		}
		d.Port = p
		if p == "" {
			missing = true
		}
	}
	if !missing {
		return nil
	}

	candidates, err := discovery.List(nil)
	if err != nil {
		return err
	}

	probe := port.NewManager(rtu.Transport{}, nil, log)
	defer probe.CloseAll()

	id := discovery.NewIdentifier(probe, st, coordinator.PortOptions(cfg.Putter), cfg.Putter.UnitID, log)
	found, err := id.AutoAssign(ctx, candidates)
	if err != nil {
		return err
	}

	for kind, d := range devices {
		if d.Port == "" {
			d.Port = found[kind]
		}
		if d.Port == "" {
			return errors.New("no " + kind + " device found")
		}
	}
	return nil
}
