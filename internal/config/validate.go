package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateResource(); err != nil {
		return err
	}
	if err := c.validateApproval(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.GatingThreshold < 0 || c.Matching.GatingThreshold > 1 {
		return errors.New("matching.gating_threshold must be between 0 and 1")
	}
	if c.Matching.NotifyThreshold < 0 || c.Matching.NotifyThreshold > 1 {
		return errors.New("matching.notify_threshold must be between 0 and 1")
	}
	if c.Matching.CosineWeight < 0 || c.Matching.CosineWeight > 1 {
		return errors.New("matching.cosine_weight must be between 0 and 1")
	}
	if c.Matching.EmbeddingsURL == "" {
		return errors.New("matching.embeddings_url must be set")
	}
	return nil
}

func (c *Config) validateResource() error {
	// MAC address is optional: without it the lease manager assumes the host
	// is always powered and only probes readiness.
	if c.Resource.MACAddress != "" && len(normalizeMAC(c.Resource.MACAddress)) != 12 {
		return fmt.Errorf("resource.mac_address %q is not a valid MAC address", c.Resource.MACAddress)
	}
	return nil
}

func (c *Config) validateApproval() error {
	if c.Approval.HardExpiryHours < c.Approval.WindowHours {
		return errors.New("approval.hard_expiry_hours must not be shorter than approval.window_hours")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func normalizeMAC(mac string) string {
	out := make([]byte, 0, len(mac))
	for i := 0; i < len(mac); i++ {
		switch mac[i] {
		case ':', '-':
		default:
			out = append(out, mac[i])
		}
	}
	return string(out)
}
