package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMatching()
	c.normalizeResource()
	c.normalizeWorkflow()
	c.normalizeApproval()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Profile.NarrativePath, err = expandPath(c.Profile.NarrativePath); err != nil {
		return fmt.Errorf("profile.narrative_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeMatching() {
	if c.Matching.GatingThreshold == 0 {
		c.Matching.GatingThreshold = defaultGatingThreshold
	}
	if c.Matching.NotifyThreshold == 0 {
		c.Matching.NotifyThreshold = defaultNotifyThreshold
	}
	if c.Matching.CosineWeight == 0 {
		c.Matching.CosineWeight = defaultCosineWeight
	}
}

func (c *Config) normalizeResource() {
	if strings.TrimSpace(c.Resource.BroadcastAddr) == "" {
		c.Resource.BroadcastAddr = defaultBroadcastAddr
	}
	if c.Resource.WakeAttempts <= 0 {
		c.Resource.WakeAttempts = defaultWakeAttempts
	}
	if c.Resource.SettleSeconds <= 0 {
		c.Resource.SettleSeconds = defaultSettleSeconds
	}
	if c.Resource.IdleSeconds <= 0 {
		c.Resource.IdleSeconds = defaultIdleSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollInterval <= 0 {
		c.Workflow.PollInterval = defaultPollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.RetryBaseSeconds <= 0 {
		c.Workflow.RetryBaseSeconds = defaultRetryBaseSeconds
	}
	if c.Workflow.RetryMaxAttempts <= 0 {
		c.Workflow.RetryMaxAttempts = defaultRetryMaxAttempts
	}
}

func (c *Config) normalizeApproval() {
	if c.Approval.WindowHours <= 0 {
		c.Approval.WindowHours = defaultApprovalWindowHours
	}
	if c.Approval.HardExpiryHours <= 0 {
		c.Approval.HardExpiryHours = defaultHardExpiryHours
	}
	if c.Approval.SweepIntervalSeconds <= 0 {
		c.Approval.SweepIntervalSeconds = defaultSweepIntervalSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
