package clients

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
)

const (
	ProviderSendGrid = "sendgrid"
	ProviderPostmark = "postmark"
	ProviderLog      = "log"

	emailChannel = "email"
)

var (
	_ interfaces.EmailDispatcher = (*SendGridMailer)(nil)
	_ interfaces.EmailDispatcher = (*PostmarkMailer)(nil)
	_ interfaces.EmailDispatcher = (*LogMailer)(nil)
	_ interfaces.EmailDispatcher = (*MockMailer)(nil)
)

// NewMailer builds the email provider selected by configuration.
func NewMailer(cfg config.EmailConfig, logger *logging.LoggerV2) (interfaces.EmailDispatcher, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, errors.New("SENDGRID_API_KEY is required for the sendgrid provider")
		}
		return NewSendGridMailer(cfg, logger), nil
	case ProviderPostmark:
		if cfg.PostmarkServerToken == "" {
			return nil, errors.New("POSTMARK_SERVER_TOKEN is required for the postmark provider")
		}
		return NewPostmarkMailer(cfg, logger), nil
	case ProviderLog, "":
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// SendGridMailer sends transactional email through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.LoggerV2
}

func NewSendGridMailer(cfg config.EmailConfig, logger *logging.LoggerV2) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.From),
		logger: logger,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", to), "", htmlBody)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return errors.NewDeliveryError(emailChannel, to, err)
	}
	if resp.StatusCode >= 300 {
		return errors.NewDeliveryError(emailChannel, to,
			fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body))
	}

	m.logger.Info("Email sent", logging.Fields{
		"provider": ProviderSendGrid,
		"subject":  subject,
	})
	return nil
}

// PostmarkMailer sends transactional email through Postmark.
type PostmarkMailer struct {
	client *postmark.Client
	from   string
	logger *logging.LoggerV2
}

func NewPostmarkMailer(cfg config.EmailConfig, logger *logging.LoggerV2) *PostmarkMailer {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	return &PostmarkMailer{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   from,
		logger: logger,
	}
}

// Send delivers one email. The Postmark client has no context support, so
// ctx only short-circuits calls that are already cancelled.
func (m *PostmarkMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewDeliveryError(emailChannel, to, err)
	}

	resp, err := m.client.SendEmail(postmark.Email{
		From:     m.from,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		Tag:      "order",
	})
	if err != nil {
		return errors.NewDeliveryError(emailChannel, to, err)
	}
	if resp.ErrorCode != 0 {
		return errors.NewDeliveryError(emailChannel, to,
			fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}

	m.logger.Info("Email sent", logging.Fields{
		"provider":   ProviderPostmark,
		"subject":    subject,
		"message_id": resp.MessageID,
	})
	return nil
}

// LogMailer writes emails to the log instead of sending them. Used for local
// development.
type LogMailer struct {
	logger *logging.LoggerV2
}

func NewLogMailer(logger *logging.LoggerV2) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.logger.Info("Email (not sent)", logging.Fields{
		"provider":  ProviderLog,
		"to":        to,
		"subject":   subject,
		"body_size": len(htmlBody),
	})
	return nil
}

// SentEmail is an email captured by MockMailer.
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockMailer records emails for tests.
type MockMailer struct {
	mu   sync.Mutex
	sent []SentEmail
	err  error
}

func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return errors.NewDeliveryError(emailChannel, to, m.err)
	}
	m.sent = append(m.sent, SentEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// FailWith makes subsequent sends fail with err.
func (m *MockMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockMailer) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}

func (m *MockMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
