package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jpillora/requestlog"
	"github.com/mitchellh/mapstructure"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/channels/email"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/channels/push"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/channels/sms"
	"github.com/grassrootza/grassroot-platform-sub003/server/responses"
	"github.com/grassrootza/grassroot-platform-sub003/share"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

const (
	DefaultAddress         = "0.0.0.0:8080"
	DefaultMaxRequestBytes = 10 * 1024
	DefaultShutdownTimeout = 10 * time.Second

	notificationsDBFile = "notifications.db"
	directoryDBFile     = "directory.db"
)

type ServerConfig struct {
	ListenAddress   string `mapstructure:"address"`
	DataDir         string `mapstructure:"data_dir"`
	MaxRequestBytes int64  `mapstructure:"max_request_bytes"`
	AccessLogFile   string `mapstructure:"access_log_file"`
}

type LogConfig struct {
	LogOutput logger.LogOutput `mapstructure:"log_file"`
	LogLevel  logger.LogLevel  `mapstructure:"log_level"`
}

type APIConfig struct {
	Auth          string `mapstructure:"auth"`
	InboundSecret string `mapstructure:"inbound_secret"`

	authUser     string
	authPassword string
}

type DatabaseConfig struct {
	WALEnabled bool `mapstructure:"wal"`
}

type DispatchConfig struct {
	DefaultChannel notifications.Channel `mapstructure:"default_channel"`
	RetryHint      time.Duration         `mapstructure:"retry_hint"`
	// USSDVia names the channel whose gateway carries USSD notifications.
	USSDVia notifications.Channel `mapstructure:"ussd_via"`
}

type ReceiptsConfig struct {
	Workers  int                  `mapstructure:"workers"`
	Capacity int                  `mapstructure:"capacity"`
	Policy   notifications.Policy `mapstructure:"policy"`
	// UnknownRetry delays the second lookup of a receipt whose sending key is not stored yet.
	// Negative disables it.
	UnknownRetry time.Duration `mapstructure:"unknown_retry"`
}

// ConfigDecodeHooks parse the typed settings of Config while it is decoded.
var ConfigDecodeHooks = []mapstructure.DecodeHookFunc{
	share.ParseHook(notifications.ParseChannel),
	share.ParseHook(notifications.ParsePolicy),
}

type ResponsesConfig struct {
	DiagnosticWindow    time.Duration `mapstructure:"diagnostic_window"`
	DiagnosticDepth     int           `mapstructure:"diagnostic_depth"`
	ReplyFailureMessage string        `mapstructure:"reply_failure_message"`
	PhoneCacheTTL       time.Duration `mapstructure:"phone_cache_ttl"`
	CountryCode         string        `mapstructure:"country_code"`
}

type SweeperConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Schedule     string        `mapstructure:"schedule"`
	AbandonAfter time.Duration `mapstructure:"abandon_after"`
}

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LogConfig        `mapstructure:"logging"`
	API       APIConfig        `mapstructure:"api"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Dispatch  DispatchConfig   `mapstructure:"dispatch"`
	Receipts  ReceiptsConfig   `mapstructure:"receipts"`
	Responses ResponsesConfig  `mapstructure:"responses"`
	Sweeper   SweeperConfig    `mapstructure:"sweeper"`
	SMS       sms.Config       `mapstructure:"sms"`
	Pushover  push.Config      `mapstructure:"pushover"`
	SMTP      email.SMTPConfig `mapstructure:"smtp"`
}

func (c *Config) NotificationsDBPath() string {
	return filepath.Join(c.Server.DataDir, notificationsDBFile)
}

func (c *Config) DirectoryDBPath() string {
	return filepath.Join(c.Server.DataDir, directoryDBFile)
}

func (c *Config) InitRequestLogOptions() *requestlog.Options {
	o := requestlog.DefaultOptions
	if c.Logging.LogOutput.File != nil {
		o.Writer = c.Logging.LogOutput.File
	}
	o.Filter = func(r *http.Request, code int, duration time.Duration, size int64) bool {
		return c.Logging.LogLevel == logger.LogLevelInfo || c.Logging.LogLevel == logger.LogLevelDebug
	}
	return &o
}

func (c *Config) ParseAndValidate() error {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultAddress
	}
	if c.Server.DataDir == "" {
		return errors.New("'data directory path' cannot be empty")
	}
	if c.Server.MaxRequestBytes <= 0 {
		c.Server.MaxRequestBytes = DefaultMaxRequestBytes
	}

	if err := c.parseAPI(); err != nil {
		return err
	}
	if err := c.parseDispatch(); err != nil {
		return err
	}
	if err := c.parseReceipts(); err != nil {
		return err
	}
	if err := c.parseResponses(); err != nil {
		return err
	}
	if err := c.parseSweeper(); err != nil {
		return err
	}

	if c.SMTP.Enabled() {
		if _, err := email.ConfigFromSMTPConfig(c.SMTP); err != nil {
			return fmt.Errorf("invalid smtp config: %w", err)
		}
	}
	return nil
}

func (c *Config) parseAPI() error {
	if c.API.Auth == "" {
		return nil
	}
	user, password, ok := share.ParseAuth(c.API.Auth)
	if !ok {
		return fmt.Errorf("invalid api auth format: expected <user>:<password>, actual %q", c.API.Auth)
	}
	c.API.authUser = user
	c.API.authPassword = password
	return nil
}

func (c *Config) parseDispatch() error {
	var err error
	if c.Dispatch.DefaultChannel == "" {
		c.Dispatch.DefaultChannel = notifications.ChannelSMS
	}
	c.Dispatch.DefaultChannel, err = notifications.ParseChannel(string(c.Dispatch.DefaultChannel))
	if err != nil {
		return fmt.Errorf("invalid dispatch default channel: %w", err)
	}

	if c.Dispatch.USSDVia == "" {
		c.Dispatch.USSDVia = notifications.ChannelSMS
	}
	c.Dispatch.USSDVia, err = notifications.ParseChannel(string(c.Dispatch.USSDVia))
	if err != nil {
		return fmt.Errorf("invalid dispatch ussd_via: %w", err)
	}
	if c.Dispatch.USSDVia == notifications.ChannelUSSD {
		return errors.New("dispatch ussd_via must name a channel other than USSD")
	}

	if c.Dispatch.RetryHint < 0 {
		return fmt.Errorf("dispatch retry hint cannot be negative, actual: %v", c.Dispatch.RetryHint)
	}
	if c.Dispatch.RetryHint == 0 {
		c.Dispatch.RetryHint = notifications.DefaultRetryHint
	}
	return nil
}

func (c *Config) parseReceipts() error {
	if c.Receipts.Workers < 0 || c.Receipts.Capacity < 0 {
		return fmt.Errorf("receipt workers and capacity cannot be negative, actual: %d, %d", c.Receipts.Workers, c.Receipts.Capacity)
	}
	if c.Receipts.Workers == 0 {
		c.Receipts.Workers = notifications.DefaultReceiptWorkers
	}
	if c.Receipts.Capacity == 0 {
		c.Receipts.Capacity = notifications.DefaultReceiptQueueCapacity
	}
	if c.Receipts.Policy == "" {
		c.Receipts.Policy = notifications.PolicyBlock
	}
	var err error
	c.Receipts.Policy, err = notifications.ParsePolicy(string(c.Receipts.Policy))
	return err
}

func (c *Config) parseResponses() error {
	if c.Responses.DiagnosticWindow < 0 || c.Responses.DiagnosticDepth < 0 || c.Responses.PhoneCacheTTL < 0 {
		return errors.New("responses diagnostic window, depth and phone cache ttl cannot be negative")
	}
	if c.Responses.CountryCode == "" {
		c.Responses.CountryCode = responses.DefaultCountryCode
	}
	for _, r := range c.Responses.CountryCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("invalid responses country code %q", c.Responses.CountryCode)
		}
	}
	return nil
}

func (c *Config) parseSweeper() error {
	if !c.Sweeper.Enabled {
		return nil
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = notifications.DefaultSweepSchedule
	}
	if err := notifications.ValidateSweepSchedule(c.Sweeper.Schedule); err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", c.Sweeper.Schedule, err)
	}
	if c.Sweeper.AbandonAfter < 0 {
		return fmt.Errorf("sweeper abandon_after cannot be negative, actual: %v", c.Sweeper.AbandonAfter)
	}
	if c.Sweeper.AbandonAfter == 0 {
		c.Sweeper.AbandonAfter = notifications.DefaultAbandonAfter
	}
	return nil
}
