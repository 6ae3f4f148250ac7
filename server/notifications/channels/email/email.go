package email

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

const DefaultSubject = "Grassroot notification"

// SMTPConfig is the [smtp] section of the server config.
type SMTPConfig struct {
	Server       string `mapstructure:"server"`
	AuthUsername string `mapstructure:"auth_username"`
	AuthPassword string `mapstructure:"auth_password"`
	SenderEmail  string `mapstructure:"sender_email"`
	Secure       bool   `mapstructure:"secure"`
}

func (c SMTPConfig) Enabled() bool {
	return c.Server != ""
}

type AuthUserPass struct {
	User string
	Pass string
}

type Config struct {
	Host         string
	Port         int
	Domain       string
	From         string
	Subject      string
	TLS          bool
	AuthUserPass AuthUserPass
	NoNoop       bool
}

// ConfigFromSMTPConfig splits "host[:port]" and takes the HELO domain from the sender address.
func ConfigFromSMTPConfig(config SMTPConfig) (Config, error) {
	u, err := url.Parse(config.Server)
	if err != nil {
		return Config{}, fmt.Errorf("can't parse host from SMTP config: %v", err)
	}
	sPort := u.Port()

	var host string
	if u.Hostname() == "" {
		parts := strings.Split(config.Server, ":")
		host = parts[0]

		if len(parts) == 2 {
			sPort = parts[1]
		}
	} else {
		host = u.Hostname()
	}

	port := -1 // let the library pick
	if sPort != "" {
		port, err = strconv.Atoi(sPort)
		if err != nil {
			return Config{}, fmt.Errorf("can't parse port number: %v", err)
		}
	}

	emailSplit := strings.Split(config.SenderEmail, "@")
	if len(emailSplit) != 2 {
		return Config{}, fmt.Errorf("can't parse sender email from SMTP config: %q", config.SenderEmail)
	}

	return Config{
		Host:    host,
		Port:    port,
		Domain:  emailSplit[1],
		From:    config.SenderEmail,
		Subject: DefaultSubject,
		TLS:     config.Secure,
		AuthUserPass: AuthUserPass{
			User: config.AuthUsername,
			Pass: config.AuthPassword,
		},
	}, nil
}

// Gateway delivers EMAIL notifications over SMTP. The sending key is the generated Message-ID.
type Gateway struct {
	config Config
	logger *logger.Logger
}

func NewGateway(l *logger.Logger, config Config) *Gateway {
	if config.Subject == "" {
		config.Subject = DefaultSubject
	}
	return &Gateway{
		config: config,
		logger: l,
	}
}

func (g *Gateway) Send(ctx context.Context, msg notifications.OutboundMessage) (string, error) {
	key := uuid.New().String()

	m := mail.NewMsg()
	if err := m.From(g.config.From); err != nil {
		return "", notifications.Permanent(fmt.Errorf("failed to set From address: %s", err))
	}
	if err := m.To(msg.To); err != nil {
		return "", notifications.Permanent(fmt.Errorf("failed to set To address: %s", err))
	}
	m.SetMessageIDWithValue(key + "@" + g.config.Domain)
	m.Subject(g.config.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	client, err := g.buildClient()
	if err != nil {
		return "", notifications.Permanent(fmt.Errorf("failed to create mail client: %s", err))
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", notifications.Transient(fmt.Errorf("failed to send mail: %s", err))
	}

	g.logger.Debugf("mail for notification %s sent to %s", msg.NotificationID, msg.To)
	return key, nil
}

func (g *Gateway) buildClient() (*mail.Client, error) {
	options := []mail.Option{
		mail.WithHELO(g.config.Domain),
	}

	if g.config.TLS {
		options = append(options, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		options = append(options, mail.WithTLSPolicy(mail.NoTLS))
	}

	if g.config.NoNoop {
		options = append(options, mail.WithoutNoop())
	}

	if g.config.AuthUserPass.User != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(g.config.AuthUserPass.User),
			mail.WithPassword(g.config.AuthUserPass.Pass),
		)
	}

	if g.config.Port > 0 { // enforce the configured port
		options = append(options, mail.WithPort(g.config.Port))
	}

	return mail.NewClient(g.config.Host, options...)
}
