package notifications

import (
	"context"
	"errors"
	"fmt"
)

type OutboundMessage struct {
	NotificationID string
	Channel        Channel
	To             string
	Body           string
}

// Gateway hands a message to an external provider and returns the provider reference
// that later delivery receipts will carry.
type Gateway interface {
	Send(ctx context.Context, msg OutboundMessage) (sendingKey string, err error)
}

type Gateways map[Channel]Gateway

// Channels lists the configured channels in AllChannels order.
func (g Gateways) Channels() []Channel {
	res := []Channel{}
	for _, c := range AllChannels {
		if _, ok := g[c]; ok {
			res = append(res, c)
		}
	}
	return res
}

// GatewayError tells the dispatcher whether resending could ever succeed.
type GatewayError struct {
	Permanent bool
	Err       error
}

func (e *GatewayError) Error() string {
	return e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func Permanent(err error) error {
	return &GatewayError{Permanent: true, Err: err}
}

func Transient(err error) error {
	return &GatewayError{Permanent: false, Err: err}
}

// IsPermanent reports whether err was marked permanent by a gateway. Unmarked errors are transient.
func IsPermanent(err error) bool {
	var gErr *GatewayError
	if errors.As(err, &gErr) {
		return gErr.Permanent
	}
	return false
}

// Contact is what the dispatcher needs to know about a recipient.
type Contact struct {
	UserID    string
	MSISDN    string
	Email     string
	PushKey   string
	Preferred Channel
}

func (c Contact) Address(channel Channel) string {
	switch channel {
	case ChannelSMS, ChannelUSSD:
		return c.MSISDN
	case ChannelPush:
		return c.PushKey
	case ChannelEmail:
		return c.Email
	}
	return ""
}

type Recipients interface {
	Contact(ctx context.Context, userID string) (Contact, bool, error)
}

// DispatchError is returned when the gateway refused a notification. The notification
// has already been stored as DELIVERY_FAILED.
type DispatchError struct {
	Notification *Notification
	Permanent    bool
	Err          error
}

func (e *DispatchError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s dispatch failure for notification %s: %v", kind, e.Notification.ID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
