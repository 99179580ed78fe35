// Package wsstatus is the status/control surface (C10): a fiber HTTP
// server exposing an unauthenticated health probe, a login endpoint
// that trades the configured shared token for a JWT, a status
// snapshot of the current radio configuration and actor counters, and
// a WebSocket feed that pushes radio_event/status messages to
// connected clients as they happen. Grounded on the teacher's
// internal/api/service.go fiber app wiring and internal/websocket's
// Hub broadcast engine, with auth from internal/api/middleware.
package wsstatus

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/blasphemetheus/d2d-responder/internal/api/middleware"
	"github.com/blasphemetheus/d2d-responder/internal/beacon"
	"github.com/blasphemetheus/d2d-responder/internal/echo"
	"github.com/blasphemetheus/d2d-responder/internal/health"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
	"github.com/blasphemetheus/d2d-responder/internal/resources"
	"github.com/blasphemetheus/d2d-responder/internal/websocket"
)

// Config configures the status server. AuthToken is the plaintext
// shared secret operators present to /login; it is hashed once at
// NewServer time and never compared in plaintext again.
type Config struct {
	Addr      string
	AuthToken string
	JWT       middleware.JWTConfig
}

// Server hosts the status/control fiber app plus the WebSocket hub
// that broadcasts radio events to connected clients.
type Server struct {
	app        *fiber.App
	hub        *websocket.Hub
	backend    radio.Backend
	beaconDrv  *beacon.Driver
	echoDrv    *echo.Driver
	tokenHash  []byte
	jwtConfig  middleware.JWTConfig
	addr       string
	log        *zap.Logger
	unsubRadio func()
	health     *health.HealthChecker
}

// loginRequest is the body expected by POST /login.
type loginRequest struct {
	Token string `json:"token"`
}

// loginResponse carries the minted bearer token.
type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// NewServer builds the fiber app and WebSocket hub, wiring routes
// against backend for status snapshots and beaconDrv/echoDrv for
// actor counters. It does not start listening; call Run for that.
func NewServer(cfg Config, backend radio.Backend, beaconDrv *beacon.Driver, echoDrv *echo.Driver, log *zap.Logger) (*Server, error) {
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("wsstatus: auth token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AuthToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("wsstatus: hash auth token: %w", err)
	}

	jwtCfg := cfg.JWT
	jwtCfg.SkipPaths = append(jwtCfg.SkipPaths, "/healthz", "/login")

	s := &Server{
		app:       fiber.New(fiber.Config{DisableStartupMessage: true}),
		hub:       websocket.NewHub(),
		backend:   backend,
		beaconDrv: beaconDrv,
		echoDrv:   echoDrv,
		tokenHash: hash,
		jwtConfig: jwtCfg,
		addr:      cfg.Addr,
		log:       log,
		health:    health.NewHealthChecker(),
	}

	s.health.RegisterCheck("radio", health.RadioConnectedHealthCheck(backend.Connected), 30*time.Second)
	s.health.RegisterCheck("disk", health.DiskSpaceHealthCheck(func() (used, total uint64) {
		d := resources.GetDiskUsage(".")
		return d.Used, d.Total
	}), 30*time.Second)
	s.health.RegisterCheck("memory", health.MemoryHealthCheck(func() (used, total uint64) {
		info := resources.GetSystemInfo()
		return info.OSMemUsed, info.OSMemTotal
	}), 30*time.Second)
	s.health.RegisterCheck("goroutines", health.GoroutineHealthCheck(runtime.NumGoroutine, 10000), 30*time.Second)

	go s.hub.Run()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleHealthz)
	s.app.Post("/login", s.handleLogin)

	protected := s.app.Group("", middleware.JWTMiddleware(s.jwtConfig))
	protected.Get("/status", s.handleStatus)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if !fiberws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, s.wsAuth)
	s.app.Get("/ws", fiberws.New(s.hub.HandleWebSocket))
}

// wsAuth validates the bearer token carried as a query parameter,
// since browser WebSocket clients cannot set an Authorization header
// on the upgrade request.
func (s *Server) wsAuth(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token query parameter"})
	}
	if _, err := middleware.ValidateToken(token, s.jwtConfig); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	return c.Next()
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	s.health.RunChecks(c.Context())
	body := s.health.GetCheckResults()
	status := fiber.StatusOK
	if s.health.GetOverallStatus() == health.StatusUnhealthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(body)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := bcrypt.CompareHashAndPassword(s.tokenHash, []byte(req.Token)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	access, err := middleware.GenerateToken("operator", "operator", []string{"operator"}, s.jwtConfig)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to issue token"})
	}
	return c.JSON(loginResponse{AccessToken: access})
}

// handleStatus mirrors the get_radio_settings shape of spec.md §12:
// the current radio.Config plus beacon/echo actor counters.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	settings := s.backend.Settings()
	resp := fiber.Map{
		"connected": s.backend.Connected(),
		"settings": fiber.Map{
			"frequency_hz":     settings.FrequencyHz,
			"spreading_factor": settings.SpreadingFactor,
			"bandwidth_hz":     settings.BandwidthHz,
			"coding_rate":      settings.CodingRate,
			"tx_power_dbm":     settings.TxPowerDbm,
			"sync_word":        settings.SyncWord,
			"preamble_len":     settings.PreambleLen,
			"crc_on":           settings.CrcOn,
			"implicit_header":  settings.ImplicitHeader,
		},
	}
	if s.beaconDrv != nil {
		resp["beacon"] = fiber.Map{
			"running":    s.beaconDrv.Running(),
			"tx_count":   s.beaconDrv.TxCount(),
			"fail_count": s.beaconDrv.FailCount(),
		}
	}
	if s.echoDrv != nil {
		resp["echo"] = fiber.Map{
			"running":  s.echoDrv.Running(),
			"state":    s.echoDrv.State().String(),
			"rx_count": s.echoDrv.RxCount(),
			"tx_count": s.echoDrv.TxCount(),
		}
	}
	return c.JSON(resp)
}

// WatchEvents subscribes to backend and rebroadcasts every event to
// connected WebSocket clients as a MessageTypeRadioEvent message.
// Call Close (or the returned unsubscribe, if the caller wants finer
// control) during shutdown.
func (s *Server) WatchEvents(id radio.SubscriberID) {
	ch := make(chan radio.Event, 32)
	s.backend.Subscribe(id, ch)
	s.unsubRadio = func() { s.backend.Unsubscribe(id) }
	go func() {
		for ev := range ch {
			s.hub.Broadcast(websocket.MessageTypeRadioEvent, eventToMap(ev))
		}
	}()
}

func eventToMap(ev radio.Event) map[string]interface{} {
	data := map[string]interface{}{"kind": string(ev.Kind)}
	switch ev.Kind {
	case radio.EventRx:
		if ev.Frame != nil {
			data["bytes"] = len(ev.Frame.Bytes)
			if ev.Frame.RssiDbm != nil {
				data["rssi_dbm"] = *ev.Frame.RssiDbm
			}
			if ev.Frame.SnrDb != nil {
				data["snr_db"] = *ev.Frame.SnrDb
			}
		}
	case radio.EventTx:
		data["bytes"] = len(ev.Payload)
	default:
		data["tag"] = ev.Tag
	}
	return data
}

// Run starts the fiber app. It blocks until the listener stops, so
// callers typically run it in its own goroutine.
func (s *Server) Run() error {
	return s.app.Listen(s.addr)
}

// Shutdown stops accepting new connections and unsubscribes from the
// radio backend's event feed, giving in-flight requests ctx's deadline
// to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubRadio != nil {
		s.unsubRadio()
	}
	return s.app.ShutdownWithContext(ctx)
}

// ClientCount reports how many WebSocket clients are currently
// connected, mainly for /status diagnostics and tests.
func (s *Server) ClientCount() int {
	return s.hub.GetClientCount()
}
