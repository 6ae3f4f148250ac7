package server

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"

	dirmigration "github.com/grassrootza/grassroot-platform-sub003/db/migration/directory"
	notificationsmigration "github.com/grassrootza/grassroot-platform-sub003/db/migration/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/db/sqlite"
	"github.com/grassrootza/grassroot-platform-sub003/server/directory"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/channels/email"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/channels/push"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/channels/sms"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/channels/tolog"
	notificationsrepo "github.com/grassrootza/grassroot-platform-sub003/server/notifications/repository/sqlite"
	"github.com/grassrootza/grassroot-platform-sub003/server/responses"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

// Server wires the notification stores, the dispatcher, the receipt workers, the
// reply correlator and the sweeper behind the API listener.
type Server struct {
	*logger.Logger
	config      *Config
	store       notifications.Store
	directoryDB *sqlx.DB
	receipts    *notifications.ReceiptQueue
	sweeper     *notifications.Sweeper
	apiListener *APIListener
}

func NewServer(config *Config) (*Server, error) {
	s := &Server{
		Logger: logger.NewLogger("server", config.Logging.LogOutput, config.Logging.LogLevel),
		config: config,
	}

	if err := os.MkdirAll(config.Server.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir %q: %v", config.Server.DataDir, err)
	}

	dsOptions := sqlite.DataSourceOptions{WALEnabled: config.Database.WALEnabled}
	notificationsDB, err := sqlite.New(config.NotificationsDBPath(), notificationsmigration.Files, dsOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications DB instance: %v", err)
	}
	s.store = notificationsrepo.NewRepository(notificationsDB, s.Fork("notifications-repo"))

	s.directoryDB, err = sqlite.New(config.DirectoryDBPath(), dirmigration.Files, dsOptions)
	if err != nil {
		_ = s.store.Close()
		return nil, fmt.Errorf("failed to create directory DB instance: %v", err)
	}
	dir := directory.NewRepository(s.directoryDB, s.Fork("directory"))

	gateways, err := s.buildGateways()
	if err != nil {
		_ = s.closeStores()
		return nil, err
	}

	dispatcher := notifications.NewDispatcher(s.Fork("dispatcher"), s.store, dir, gateways, notifications.DispatcherOptions{
		DefaultChannel: config.Dispatch.DefaultChannel,
		RetryHint:      config.Dispatch.RetryHint,
	})

	s.receipts = notifications.NewReceiptQueue(s.Fork("receipts"), s.store, notifications.ReceiptQueueOptions{
		Capacity:     config.Receipts.Capacity,
		Workers:      config.Receipts.Workers,
		Policy:       config.Receipts.Policy,
		UnknownRetry: config.Receipts.UnknownRetry,
	})

	correlator := responses.NewCorrelator(s.Fork("correlator"), dir, dir, dir, s.store, dispatcher, responses.Options{
		CountryCode:         config.Responses.CountryCode,
		DiagnosticWindow:    config.Responses.DiagnosticWindow,
		DiagnosticDepth:     config.Responses.DiagnosticDepth,
		ReplyFailureMessage: config.Responses.ReplyFailureMessage,
		PhoneCacheTTL:       config.Responses.PhoneCacheTTL,
	})

	if config.Sweeper.Enabled {
		s.sweeper = notifications.NewSweeper(s.Fork("sweeper"), s.store, notifications.SweeperOptions{
			AbandonAfter: config.Sweeper.AbandonAfter,
		})
	}

	s.apiListener, err = NewAPIListener(s.Logger, config, Services{
		Store:      s.store,
		Dispatcher: dispatcher,
		Receipts:   s.receipts,
		Correlator: correlator,
		Channels:   gateways.Channels(),
	})
	if err != nil {
		_ = s.receipts.Close()
		_ = s.closeStores()
		return nil, err
	}

	return s, nil
}

// buildGateways enables a channel only when its section is configured. Without an SMS
// provider messages are written to the log. USSD rides on another channel's gateway.
func (s *Server) buildGateways() (notifications.Gateways, error) {
	gateways := notifications.Gateways{}

	if s.config.SMS.Enabled() {
		gateways[notifications.ChannelSMS] = sms.NewGateway(s.Fork("sms-gateway"), s.config.SMS)
	} else {
		s.Infof("no sms provider configured, SMS notifications are written to the log")
		gateways[notifications.ChannelSMS] = tolog.NewGateway(s.Fork("sms-tolog"))
	}

	if s.config.Pushover.Enabled() {
		gateways[notifications.ChannelPush] = push.NewGateway(s.Fork("push-gateway"), s.config.Pushover)
	}

	if s.config.SMTP.Enabled() {
		emailConfig, err := email.ConfigFromSMTPConfig(s.config.SMTP)
		if err != nil {
			return nil, fmt.Errorf("invalid smtp config: %w", err)
		}
		gateways[notifications.ChannelEmail] = email.NewGateway(s.Fork("email-gateway"), emailConfig)
	}

	if via, ok := gateways[s.config.Dispatch.USSDVia]; ok {
		gateways[notifications.ChannelUSSD] = via
	} else {
		s.Infof("channel %s is not configured, USSD notifications are disabled", s.config.Dispatch.USSDVia)
	}

	return gateways, nil
}

// Run starts the sweeper and the API listener and blocks until ctx is done or the
// listener fails. Everything is stopped before Run returns.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		_ = s.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.apiListener.Wait()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.Infof("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			s.Errorf("api listener stopped: %v", runErr)
		}
	}

	if err := s.Close(); err != nil {
		runErr = multierror.Append(runErr, err)
	}
	return runErr
}

func (s *Server) Start() error {
	if s.sweeper != nil {
		if err := s.sweeper.Start(s.config.Sweeper.Schedule); err != nil {
			return err
		}
	}
	return s.apiListener.Start(s.config.Server.ListenAddress)
}

// Close stops intake first, then drains the receipt queue, then closes the stores.
func (s *Server) Close() error {
	var result error
	if err := s.apiListener.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("api listener: %w", err))
	}
	if s.sweeper != nil {
		if err := s.sweeper.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("sweeper: %w", err))
		}
	}
	if err := s.receipts.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("receipt queue: %w", err))
	}
	if err := s.closeStores(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

func (s *Server) closeStores() error {
	var result error
	if err := s.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("notifications store: %w", err))
	}
	if s.directoryDB != nil {
		if err := s.directoryDB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("directory DB: %w", err))
		}
	}
	return result
}
