// Package wol wakes the deep-scoring host with a wake-on-LAN magic packet and
// probes its inference endpoint for readiness.
package wol

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"snatcher/internal/config"
	"snatcher/internal/logging"
	"snatcher/internal/services"
)

// Controller drives the power lifecycle of the exclusive compute host. It
// satisfies the lease manager's resource contract.
type Controller struct {
	mac           string
	broadcastAddr string
	probeURL      string
	sleepURL      string
	attempts      int
	settle        time.Duration
	client        *http.Client
	logger        *slog.Logger
	sleeper       func(context.Context, time.Duration) error
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSleeper overrides the settle delay, primarily for tests.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Controller) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithHTTPClient overrides the probe client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		if client != nil {
			c.client = client
		}
	}
}

// NewController builds a Controller from the resource configuration.
func NewController(cfg *config.Config, logger *slog.Logger, opts ...Option) *Controller {
	settle := time.Duration(cfg.Resource.SettleSeconds) * time.Second
	if settle <= 0 {
		settle = 30 * time.Second
	}
	attempts := cfg.Resource.WakeAttempts
	if attempts <= 0 {
		attempts = 3
	}
	ctrl := &Controller{
		mac:           cfg.Resource.MACAddress,
		broadcastAddr: cfg.Resource.BroadcastAddr,
		probeURL:      strings.TrimSpace(cfg.Resource.ProbeURL),
		sleepURL:      strings.TrimSpace(cfg.Resource.SleepURL),
		attempts:      attempts,
		settle:        settle,
		client:        &http.Client{Timeout: 5 * time.Second},
		logger:        logging.NewComponentLogger(logger, "wol"),
		sleeper:       sleepContext,
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// Wake sends magic packets until the host's probe endpoint responds, up to the
// configured attempt budget. A host that never answers returns
// ErrResourceUnavailable.
func (c *Controller) Wake(ctx context.Context) error {
	if c.Probe(ctx) {
		c.logger.Debug("host already reachable, skipping wake")
		return nil
	}
	if strings.TrimSpace(c.mac) == "" {
		return services.Wrap(services.ErrResourceUnavailable, "wol", "wake", "host unreachable and no MAC address configured", nil)
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		c.logger.Info("sending magic packet",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", c.attempts))
		if err := c.sendMagicPacket(); err != nil {
			c.logger.Warn("magic packet send failed", logging.Error(err))
		}
		if err := c.sleeper(ctx, c.settle); err != nil {
			return services.Wrap(services.ErrTransient, "wol", "wake", "interrupted while waiting for boot", err)
		}
		if c.Probe(ctx) {
			c.logger.Info("host reachable", logging.Int("attempt", attempt))
			return nil
		}
	}
	return services.Wrap(services.ErrResourceUnavailable, "wol", "wake",
		fmt.Sprintf("host unreachable after %d wake attempts", c.attempts), nil)
}

// Probe reports whether the host's inference endpoint currently answers.
func (c *Controller) Probe(ctx context.Context) bool {
	if c.probeURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Sleep asks the host to suspend itself. With no sleep endpoint configured the
// host is left to its own idle policy; either way the call never fails the
// lease transition, so errors are logged and swallowed.
func (c *Controller) Sleep(ctx context.Context) error {
	if c.sleepURL == "" {
		c.logger.Debug("no sleep endpoint configured, leaving host to its own idle policy")
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sleepURL, nil)
	if err != nil {
		c.logger.Warn("build sleep request", logging.Error(err))
		return nil
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("sleep request failed", logging.Error(err))
		return nil
	}
	resp.Body.Close()
	c.logger.Info("sleep requested", logging.String("status", resp.Status))
	return nil
}

// sendMagicPacket broadcasts the standard 102-byte wake frame: six 0xFF bytes
// followed by the MAC repeated sixteen times.
func (c *Controller) sendMagicPacket() error {
	mac, err := parseMAC(c.mac)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "wol", "magic packet", "invalid MAC address", err)
	}

	packet := make([]byte, 0, 6+16*len(mac))
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, mac...)
	}

	addr := c.broadcastAddr
	if strings.TrimSpace(addr) == "" {
		addr = "255.255.255.255:9"
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial broadcast %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("send magic packet: %w", err)
	}
	return nil
}

func parseMAC(value string) ([]byte, error) {
	cleaned := strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.TrimSpace(value))
	if len(cleaned) != 12 {
		return nil, fmt.Errorf("MAC %q must contain 12 hex digits", value)
	}
	mac, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("MAC %q is not hexadecimal: %w", value, err)
	}
	return mac, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
