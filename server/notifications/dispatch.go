package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

var (
	ErrUnknownRecipient = errors.New("unknown recipient")
	ErrEmptyMessage     = errors.New("message is empty")
)

const DefaultRetryHint = 5 * time.Minute

type Request struct {
	UserID  string
	Message string
	// Channel is optional; the recipient's preference is used when empty.
	Channel Channel
	LogRef  LogRef
}

type DispatcherOptions struct {
	DefaultChannel Channel
	RetryHint      time.Duration
	Now            func() time.Time
}

type Dispatcher struct {
	store      Store
	recipients Recipients
	gateways   Gateways
	options    DispatcherOptions
	logger     *logger.Logger
}

func NewDispatcher(l *logger.Logger, store Store, recipients Recipients, gateways Gateways, options DispatcherOptions) *Dispatcher {
	if options.DefaultChannel == "" {
		options.DefaultChannel = ChannelSMS
	}
	if options.RetryHint <= 0 {
		options.RetryHint = DefaultRetryHint
	}
	if options.Now == nil {
		options.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		store:      store,
		recipients: recipients,
		gateways:   gateways,
		options:    options,
		logger:     l,
	}
}

// Send creates a notification and hands it to the gateway of the selected channel.
// It returns once the gateway accepted or rejected the message; the notification is
// stored either way. A rejection is reported as *DispatchError.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Notification, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if req.Channel != "" && !req.Channel.Valid() {
		return nil, fmt.Errorf("invalid channel: %q", req.Channel)
	}

	contact, found, err := d.recipients.Contact(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient %s: %w", req.UserID, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, req.UserID)
	}

	channel := d.selectChannel(contact, req.Channel)
	n := New(req.UserID, req.Message, channel, req.LogRef, d.options.Now())
	if err := d.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	key, sendErr := d.transmit(ctx, n, contact.Address(channel))
	now := d.options.Now()
	if sendErr != nil {
		return d.fail(ctx, n, sendErr, now)
	}

	change, _ := n.MarkSent(key, now)
	if _, err := d.store.Transition(ctx, n, change); err != nil {
		return n, fmt.Errorf("notification %s sent with key %s but not stored: %w", n.ID, key, err)
	}
	d.logger.Debugf("notification %s sent to %s via %s, key %s", n.ID, n.UserID, n.Channel, key)
	return n, nil
}

func (d *Dispatcher) transmit(ctx context.Context, n *Notification, address string) (string, error) {
	if address == "" {
		return "", Permanent(fmt.Errorf("no address for channel %s", n.Channel))
	}
	gateway, ok := d.gateways[n.Channel]
	if !ok || gateway == nil {
		return "", Permanent(fmt.Errorf("no gateway configured for channel %s", n.Channel))
	}
	key, err := gateway.Send(ctx, OutboundMessage{
		NotificationID: n.ID,
		Channel:        n.Channel,
		To:             address,
		Body:           n.Message,
	})
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", Transient(errors.New("gateway accepted the message without a sending key"))
	}
	return key, nil
}

func (d *Dispatcher) fail(ctx context.Context, n *Notification, sendErr error, now time.Time) (*Notification, error) {
	permanent := IsPermanent(sendErr)
	change, _ := n.MarkFailed(sendErr.Error(), now)
	if !permanent {
		next := now.Add(d.options.RetryHint)
		n.NextAttemptAt = &next
	}
	if _, err := d.store.Transition(ctx, n, change); err != nil {
		return n, fmt.Errorf("failed to store dispatch failure of notification %s: %w", n.ID, err)
	}
	d.logger.Infof("notification %s to %s via %s failed: %v", n.ID, n.UserID, n.Channel, sendErr)
	return n, &DispatchError{Notification: n, Permanent: permanent, Err: sendErr}
}

// selectChannel prefers the explicit channel, then the recipient's preference when it
// has an address and a gateway, then the default channel.
func (d *Dispatcher) selectChannel(contact Contact, explicit Channel) Channel {
	if explicit != "" {
		return explicit
	}
	if contact.Preferred.Valid() && contact.Address(contact.Preferred) != "" && d.gateways[contact.Preferred] != nil {
		return contact.Preferred
	}
	return d.options.DefaultChannel
}
