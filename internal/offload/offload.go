// Package offload ships the SQLite event log off the SBC to a field
// collection point, either on a nightly cron schedule or once on
// graceful shutdown, grounded on the teacher's FTPNode (the upload
// path) and its cron-driven Scheduler (the schedule itself), adapted
// from per-flow triggers to a single fixed upload job.
package offload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config points at the FTP collection point and the local event log to
// upload, plus an optional nightly schedule.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	RemoteDir  string
	LocalPath  string
	CronExpr   string // e.g. "0 3 * * *"; empty disables the nightly job
	DialTimeout time.Duration
}

// Offloader uploads the configured SQLite file to an FTP server,
// either on demand (shutdown) or on a cron schedule (nightly).
type Offloader struct {
	cfg  Config
	cron *cron.Cron
	log  *zap.Logger
	mu   sync.Mutex
}

func New(cfg Config, log *zap.Logger) *Offloader {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Offloader{cfg: cfg, log: log}
}

// Start registers the nightly cron job, if one is configured. A
// no-op when CronExpr is empty, mirroring the Scheduler's
// Type-gated trigger registration.
func (o *Offloader) Start() error {
	if o.cfg.CronExpr == "" {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cron != nil {
		return fmt.Errorf("offload: scheduler already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(o.cfg.CronExpr, func() {
		if err := o.Upload(context.Background()); err != nil && o.log != nil {
			o.log.Warn("offload: scheduled upload failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("offload: add cron trigger: %w", err)
	}

	c.Start()
	o.cron = c
	return nil
}

func (o *Offloader) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cron != nil {
		o.cron.Stop()
		o.cron = nil
	}
}

// Upload dials the configured FTP server, logs in, and stores the
// local event log under RemoteDir with its basename, following
// FTPNode's Init-then-Stor sequence.
func (o *Offloader) Upload(ctx context.Context) error {
	file, err := os.Open(o.cfg.LocalPath)
	if err != nil {
		return fmt.Errorf("offload: open local file: %w", err)
	}
	defer file.Close()

	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", o.cfg.Host, o.cfg.Port), ftp.DialWithTimeout(o.cfg.DialTimeout))
	if err != nil {
		return fmt.Errorf("offload: connect to ftp server: %w", err)
	}
	defer conn.Quit()

	username := o.cfg.Username
	if username == "" {
		username = "anonymous"
	}
	if err := conn.Login(username, o.cfg.Password); err != nil {
		return fmt.Errorf("offload: ftp login: %w", err)
	}

	remotePath := filepath.ToSlash(filepath.Join(o.cfg.RemoteDir, filepath.Base(o.cfg.LocalPath)))
	if err := conn.Stor(remotePath, file); err != nil {
		return fmt.Errorf("offload: upload event log: %w", err)
	}

	if o.log != nil {
		o.log.Info("offload: uploaded event log", zap.String("remote_path", remotePath))
	}
	return nil
}
