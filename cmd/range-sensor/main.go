// Command range-sensor drives an HC-SR04 ultrasonic sensor, shows the
// distance on a small display and publishes readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/range-sensor/internal/display"
	"github.com/sweeney/range-sensor/internal/gpio"
	"github.com/sweeney/range-sensor/internal/logic"
	"github.com/sweeney/range-sensor/internal/metrics"
	"github.com/sweeney/range-sensor/internal/mqtt"
	"github.com/sweeney/range-sensor/internal/pipeline"
	"github.com/sweeney/range-sensor/internal/status"
	"github.com/sweeney/range-sensor/internal/web"
)

// statusInterval is how often counters are copied into the tracker and
// the Prometheus collectors.
const statusInterval = time.Second

type options struct {
	chip          string
	pinTrigger    int
	pinEcho       int
	display       string
	i2cBus        string
	i2cAddr       uint
	broker        string
	heartbeat     time.Duration
	httpAddr      string
	printDistance bool
}

func main() {
	var o options
	flag.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO character device")
	flag.IntVar(&o.pinTrigger, "pin-trigger", gpio.DefaultPinTrigger, "Line offset for the trigger output")
	flag.IntVar(&o.pinEcho, "pin-echo", gpio.DefaultPinEcho, "Line offset for the echo input")
	flag.StringVar(&o.display, "display", "ssd1306", "Display: ssd1306, console or none")
	flag.StringVar(&o.i2cBus, "i2c-bus", "", "I2C bus for the ssd1306 (empty for the first bus)")
	flag.UintVar(&o.i2cAddr, "i2c-addr", display.DefaultI2CAddr, "I2C address of the ssd1306")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.BoolVar(&o.printDistance, "print-distance", false, "Take one measurement, print it and exit")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// openDisplay builds the framebuffer and the panel behind it. The returned
// close function is never nil.
func openDisplay(o options) (display.Display, func() error, error) {
	nop := func() error { return nil }
	switch o.display {
	case "ssd1306":
		panel := display.NewSSD1306(o.i2cBus, uint16(o.i2cAddr))
		return display.NewFramebuffer(display.Width, display.Height, panel), panel.Close, nil
	case "console":
		return display.NewFramebuffer(display.Width, display.Height, display.NewConsole(os.Stdout)), nop, nil
	case "none":
		return display.NewFramebuffer(display.Width, display.Height, nil), nop, nil
	default:
		return nil, nop, fmt.Errorf("unknown display %q", o.display)
	}
}

func run(o options) error {
	disp, closeDisplay, err := openDisplay(o)
	if err != nil {
		return err
	}
	defer closeDisplay()

	// Initialize GPIO
	pins, err := gpio.NewRealPins(o.chip, o.pinTrigger, o.pinEcho)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	if o.printDistance {
		return printDistance(pins, disp)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Chip:        o.chip,
		PinTrigger:  o.pinTrigger,
		PinEcho:     o.pinEcho,
		Display:     o.display,
		Broker:      o.broker,
		HTTPAddr:    o.httpAddr,
		HeartbeatMs: o.heartbeat.Milliseconds(),
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()

	// Initialize MQTT
	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if o.broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             o.broker,
			OnConnectionChange: tracker.SetMQTTConnected,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		publisher, mqttStatus = rp, rp
	}
	async := mqtt.NewAsync(publisher, mqtt.DefaultQueue)

	p, err := pipeline.New(pipeline.Config{
		Trigger:   pins,
		Display:   disp,
		Observers: []pipeline.Observer{tracker, m, async},
	})
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	if err := pins.Watch(p.Edge); err != nil {
		return fmt.Errorf("watch echo: %w", err)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, m.Handler(), os.Stdout)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: chip=%s trigger=%d echo=%d display=%s broker=%s heartbeat=%v",
		o.chip, o.pinTrigger, o.pinEcho, o.display, o.broker, o.heartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return async.Run(gctx) })

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	var hb <-chan time.Time
	if o.heartbeat > 0 {
		hbTicker := time.NewTicker(o.heartbeat)
		defer hbTicker.Stop()
		hb = hbTicker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopErr := runLoop(gctx, p, publisher, mqttStatus, tracker, m, time.Now, ticker.C, hb, sigCh)
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return loopErr
}

// statsSource is the part of the pipeline the status loop reads.
type statsSource interface {
	Stats() pipeline.Stats
}

// runLoop owns the process lifecycle once the pipeline is running: it
// refreshes the tracker and metrics, publishes heartbeats and handles
// shutdown signals. It returns when a signal arrives or ctx is done.
func runLoop(ctx context.Context, p statsSource, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, m *metrics.Metrics, now func() time.Time, tick, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	refresh := func() {
		st := p.Stats()
		tracker.SetStats(st)
		m.Update(st)
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			refresh()
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			refresh()

		case t := <-heartbeat:
			refresh()
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			st := snap.Stats
			log.Printf("heartbeat: uptime=%v pulses=%d samples=%d timeouts=%d dropped=%d",
				snap.Uptime().Truncate(time.Second), st.Pulses, st.Samples, st.Timeouts, st.Dropped)

			hbEvent := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// printDistance runs the pipeline for a single cycle and prints its outcome.
func printDistance(pins *gpio.RealPins, disp display.Display) error {
	first := make(chan logic.Reading, 1)
	p, err := pipeline.New(pipeline.Config{
		Trigger: pins,
		Display: disp,
		Observers: []pipeline.Observer{pipeline.ObserverFunc(func(r logic.Reading) {
			select {
			case first <- r:
			default:
			}
		})},
	})
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	if err := pins.Watch(p.Edge); err != nil {
		return fmt.Errorf("watch echo: %w", err)
	}

	r, err := measureOnce(context.Background(), p, first)
	if err != nil {
		return err
	}
	fmt.Println(formatReading(r))
	return nil
}

type runner interface {
	Run(ctx context.Context) error
}

// measureOnce runs p until the first reading arrives on first.
func measureOnce(ctx context.Context, p runner, first <-chan logic.Reading) (logic.Reading, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case r := <-first:
		cancel()
		<-done
		return r, nil
	case err := <-done:
		if err == nil {
			err = errors.New("pipeline stopped before the first reading")
		}
		return logic.Reading{}, err
	}
}

func formatReading(r logic.Reading) string {
	if !r.OK {
		return logic.NoReadingText
	}
	return fmt.Sprintf("%s (echo %v)", logic.FormatDistance(r.Sample.CM), r.Sample.Duration)
}

// discardPublisher stands in when MQTT is disabled.
type discardPublisher struct{}

func (discardPublisher) Publish(logic.Reading) error          { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
