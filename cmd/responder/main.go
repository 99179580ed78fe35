// Command responder is the field-deployed daemon: it connects to
// whichever LoRa backend is configured, arms the beacon and echo
// actors, fans radio events out to the SQLite event log and the
// optional Redis/InfluxDB telemetry sinks, serves the status/WebSocket
// API, and on SIGINT/SIGTERM unwinds everything in reverse before
// exiting. Grounded on the teacher's cmd/edgeflow/main.go bootstrap
// ordering (HAL init, then storage, then the serving layer) and
// cmd/gpio-test's signal-channel shutdown shape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/api/middleware"
	"github.com/blasphemetheus/d2d-responder/internal/beacon"
	"github.com/blasphemetheus/d2d-responder/internal/config"
	"github.com/blasphemetheus/d2d-responder/internal/echo"
	"github.com/blasphemetheus/d2d-responder/internal/eventsink"
	"github.com/blasphemetheus/d2d-responder/internal/hal"
	"github.com/blasphemetheus/d2d-responder/internal/logger"
	"github.com/blasphemetheus/d2d-responder/internal/offload"
	"github.com/blasphemetheus/d2d-responder/internal/radio/facade"
	"github.com/blasphemetheus/d2d-responder/internal/radio/modem"
	"github.com/blasphemetheus/d2d-responder/internal/radio/sx1276"
	"github.com/blasphemetheus/d2d-responder/internal/telemetry"
	"github.com/blasphemetheus/d2d-responder/internal/wsstatus"
)

func main() {
	os.Exit(run())
}

// parseSPIBus reads the "spidevN.M" form spec.md §6 uses for spi_bus
// into the (bus, device) pair sx1276.Config expects, defaulting to
// (0, 0) if the string doesn't parse.
func parseSPIBus(s string) (int, int) {
	var bus, device int
	if _, err := fmt.Sscanf(s, "spidev%d.%d", &bus, &device); err != nil {
		return 0, 0
	}
	return bus, device
}

func run() int {
	cfgPath := os.Getenv("RESPONDER_CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	if err := logger.Init(logger.Config{Level: cfg.Logger.Level, Format: cfg.Logger.Format, LogDir: cfg.Logger.LogDir}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	log := logger.Get()
	defer logger.Sync()

	initHAL(log)
	h, err := hal.GetGlobalHAL()
	if err != nil {
		log.Error("no HAL available", zap.Error(err))
		return 1
	}

	backendKind := facade.SX1276
	if cfg.LoraBackend == "rn2903" {
		backendKind = facade.Modem
	}
	spiBus, spiDevice := parseSPIBus(cfg.SPIBus)
	radioCfg := facade.Config{
		Kind:   backendKind,
		FreqHz: cfg.FrequencyHz,
		SX1276: sx1276.Config{
			SPIBus:    spiBus,
			SPIDevice: spiDevice,
			ResetPin:  cfg.ResetPin,
			CSPin:     cfg.CSPin,
			DIO0Pin:   cfg.DIO0Pin,
			SpeedHz:   cfg.SPISpeedHz,
		},
		Modem: modem.Config{Port: cfg.SerialPort},
	}
	rad, err := facade.New(h, radioCfg, log)
	if err != nil {
		log.Error("construct radio backend", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	connErr := rad.Connect(ctx)
	cancel()
	if connErr != nil {
		log.Error("connect to radio backend", zap.Error(connErr), zap.String("kind", string(backendKind)))
		return 1
	}
	log.Info("radio backend connected", zap.String("kind", string(backendKind)))

	var sink *eventsink.SQLiteSink
	var unsubSink func()
	if cfg.EventLog.Path != "" {
		sink, err = eventsink.NewSQLiteSink(cfg.EventLog.Path, log)
		if err != nil {
			log.Error("open event log", zap.Error(err))
			return 1
		}
		unsubSink = eventsink.Bridge(rad, sink, "eventlog")
	}

	var pub *telemetry.RedisPublisher
	if cfg.Telemetry.RedisEnabled {
		pub, err = telemetry.NewRedisPublisher(telemetry.RedisConfig{
			Host:    cfg.Telemetry.RedisHost,
			Port:    cfg.Telemetry.RedisPort,
			Channel: cfg.Telemetry.RedisChannel,
		}, log)
		if err != nil {
			log.Warn("redis telemetry disabled", zap.Error(err))
			pub = nil
		}
	}
	var infl *telemetry.InfluxWriter
	if cfg.Telemetry.InfluxEnabled {
		infl = telemetry.NewInfluxWriter(telemetry.InfluxConfig{
			URL:    cfg.Telemetry.InfluxURL,
			Token:  cfg.Telemetry.InfluxToken,
			Org:    cfg.Telemetry.InfluxOrg,
			Bucket: cfg.Telemetry.InfluxBucket,
		}, log)
	}
	var unsubTelemetry func()
	if pub != nil || infl != nil {
		unsubTelemetry = telemetry.Bridge(rad, pub, infl, "telemetry")
	}

	beaconDrv := beacon.New(rad, logger.WithActor("beacon", string(backendKind)))
	if err := beaconDrv.Start(context.Background(), beacon.Options{
		Message:    []byte(cfg.Beacon.Message),
		IntervalMs: cfg.Beacon.IntervalMs,
	}); err != nil {
		log.Error("start beacon", zap.Error(err))
		return 1
	}

	echoDrv := echo.New(rad, logger.WithActor("echo", string(backendKind)))
	if err := echoDrv.Start(context.Background(), echo.Options{
		Prefix:  []byte(cfg.Echo.Prefix),
		DelayMs: cfg.Echo.DelayMs,
	}); err != nil {
		log.Error("start echo", zap.Error(err))
		return 1
	}

	var statusSrv *wsstatus.Server
	if cfg.Status.Enabled {
		statusSrv, err = wsstatus.NewServer(wsstatus.Config{
			Addr:      cfg.Status.Addr,
			AuthToken: cfg.Status.AuthToken,
			JWT: middleware.JWTConfig{
				SecretKey: cfg.Status.JWTSecret,
				Issuer:    cfg.Status.JWTIssuer,
			},
		}, rad, beaconDrv, echoDrv, log)
		if err != nil {
			log.Error("construct status server", zap.Error(err))
			return 1
		}
		statusSrv.WatchEvents("wsstatus")
		go func() {
			if err := statusSrv.Run(); err != nil {
				log.Error("status server stopped", zap.Error(err))
			}
		}()
		log.Info("status server listening", zap.String("addr", cfg.Status.Addr))
	}

	var offloader *offload.Offloader
	if cfg.Offload.Enabled {
		offloader = offload.New(offload.Config{
			Host:      cfg.Offload.Host,
			Port:      cfg.Offload.Port,
			Username:  cfg.Offload.Username,
			Password:  cfg.Offload.Password,
			RemoteDir: cfg.Offload.RemoteDir,
			LocalPath: cfg.EventLog.Path,
			CronExpr:  cfg.Offload.CronExpr,
		}, log)
		if err := offloader.Start(); err != nil {
			log.Error("start offload scheduler", zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := echoDrv.Stop(shutdownCtx); err != nil {
		log.Warn("stop echo", zap.Error(err))
	}
	if err := beaconDrv.Stop(shutdownCtx); err != nil {
		log.Warn("stop beacon", zap.Error(err))
	}
	if statusSrv != nil {
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown status server", zap.Error(err))
		}
	}
	if unsubTelemetry != nil {
		unsubTelemetry()
	}
	if pub != nil {
		pub.Close()
	}
	if infl != nil {
		infl.Close()
	}
	if unsubSink != nil {
		unsubSink()
	}
	if sink != nil {
		sink.Close()
	}
	if offloader != nil {
		if err := offloader.Upload(shutdownCtx); err != nil {
			log.Warn("shutdown FTP offload", zap.Error(err))
		}
		offloader.Stop()
	}
	if err := rad.Disconnect(shutdownCtx); err != nil {
		log.Warn("disconnect radio backend", zap.Error(err))
	}

	log.Info("shutdown complete")
	return 0
}
