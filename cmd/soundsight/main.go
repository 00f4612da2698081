// Soundsight — CLI entry point.
//
// Connects to the sensor device over TCP, reframes its byte stream into
// direction and caption messages, and shows captions only while the wearer
// faces the sound source. Events can additionally be relayed to WebSocket
// overlays, published to MQTT and counted in Prometheus.
//
// Configuration comes from built-in defaults, an optional TOML file (-config)
// and CLI flags, in increasing precedence.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/soundsight/internal/config"
	"github.com/1ureka/soundsight/internal/dispatch"
	"github.com/1ureka/soundsight/internal/emitter"
	"github.com/1ureka/soundsight/internal/handoff"
	"github.com/1ureka/soundsight/internal/link"
	"github.com/1ureka/soundsight/internal/metrics"
	"github.com/1ureka/soundsight/internal/protocol"
	"github.com/1ureka/soundsight/internal/relay"
	"github.com/1ureka/soundsight/internal/util"
)

var version = "dev"

const statsInterval = 10 * time.Second

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	configPath := flag.String("config", "", "Path to a TOML config file")
	host := flag.String("host", "", "Device host")
	port := flag.Int("port", 0, "Device port, 1~65535")
	variant := flag.String("variant", "", "Frame variant: A (S...E) or B (S...E\\n)")
	once := flag.Bool("once", false, "Connect once instead of reconnecting")
	relayAddr := flag.String("relay", "", "WebSocket relay listen address, e.g. :8765")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address, e.g. :9100")
	mqttBroker := flag.String("mqtt", "", "MQTT broker host:port")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags override the file only when given explicitly.
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Device.Host = *host
		case "port":
			cfg.Device.Port = *port
		case "variant":
			v, err := protocol.ParseVariant(*variant)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Device.Variant = v
		case "once":
			cfg.Device.Reconnect = !*once
		case "relay":
			cfg.Relay.Listen = *relayAddr
		case "metrics":
			cfg.Metrics.Listen = *metricsAddr
		case "mqtt":
			cfg.MQTT.Broker = *mqttBroker
		case "debug":
			cfg.Log.Debug = *debugMode
		}
	})
	if flagErr != nil {
		util.LogError("invalid -variant: %v", flagErr)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if cfg.Log.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Soundsight — v%s", version))
	pterm.Println()

	if err := run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed device connection")
}

// run wires the pipeline and blocks until ctx is cancelled or, with
// reconnect disabled, until the single connection ends.
func run(ctx context.Context, cfg config.Config) error {
	presenters := dispatch.Fanout{consolePresenter{}}
	events := link.MultiEvents{consoleEvents{}}

	if cfg.Relay.Listen != "" {
		hub := relay.NewHub()
		addr, err := hub.Start(cfg.Relay.Listen)
		if err != nil {
			return err
		}
		defer hub.Close()
		util.LogInfo("relay listening on ws://%s/ws", addr)
		presenters = append(presenters, hub)
		events = append(events, hub)
	}

	if cfg.MQTT.Broker != "" {
		em := emitter.NewMQTTEmitter(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
		})
		// MQTT is a side channel; the device link runs without it.
		if err := em.Connect(ctx); err != nil {
			util.LogWarning("mqtt unavailable, publishing once the broker is reachable: %v", err)
		}
		defer em.Disconnect()
		presenters = append(presenters, em)
		events = append(events, em)
	}

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				util.LogError("metrics server stopped: %v", err)
			}
		}()
		util.LogInfo("metrics listening on http://%s/metrics", cfg.Metrics.Listen)
	}

	queue := handoff.New()
	client := link.New(cfg.LinkConfig(), queue, events)
	dispatcher := dispatch.New(queue, presenters)

	util.StartStatsReporter(ctx, statsInterval)

	// The dispatcher outlives the link so the last payloads are still shown.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		dispatcher.Run(dispatchCtx, cfg.Dispatch.Tick)
		close(dispatchDone)
	}()
	defer func() {
		stopDispatch()
		<-dispatchDone
	}()

	go readConsole(ctx, client)

	util.LogInfo("connecting to device at %s:%d (variant %s)", cfg.Device.Host, cfg.Device.Port, cfg.Device.Variant)

	if cfg.Device.Reconnect {
		return link.NewSupervisor(client, cfg.Device.Host, cfg.Device.Port, cfg.Backoff).Run(ctx)
	}

	if err := client.Connect(ctx, cfg.Device.Host, cfg.Device.Port); err != nil {
		return err
	}
	select {
	case <-client.Done():
	case <-ctx.Done():
		client.Disconnect()
		<-client.Done()
	}
	return nil
}
