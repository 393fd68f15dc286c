package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/kilnpay/pkg/config"
	"github.com/angelmondragon/kilnpay/pkg/logger"
)

var (
	errAPIKeyRequired = errors.New("sendgrid api key is required")
	errFromRequired   = errors.New("sendgrid sender address is required")
)

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Message is a single transactional email.
type Message struct {
	ToName    string
	ToEmail   string
	Subject   string
	PlainText string
	HTML      string
}

// Client delivers transactional email through SendGrid's v3 mail API.
type Client struct {
	api      sender
	from     *mail.Email
	adminBCC string
}

func NewClient(ctx context.Context, cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errFromRequired
	}
	logg.Info(ctx, "sendgrid client initialized")
	return &Client{
		api:      sg.NewSendClient(key),
		from:     mail.NewEmail(cfg.FromName, from),
		adminBCC: strings.TrimSpace(cfg.AdminBCC),
	}, nil
}

// Send delivers msg. Non-2xx responses come back as *DeliveryError.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil || c.api == nil {
		return errors.New("sendgrid client not initialized")
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return &DeliveryError{StatusCode: http.StatusBadRequest, Body: "recipient address is empty"}
	}

	email := mail.NewSingleEmail(c.from, msg.Subject, mail.NewEmail(msg.ToName, msg.ToEmail), msg.PlainText, msg.HTML)
	if c.adminBCC != "" && !strings.EqualFold(c.adminBCC, msg.ToEmail) && len(email.Personalizations) > 0 {
		email.Personalizations[0].AddBCCs(mail.NewEmail("", c.adminBCC))
	}

	resp, err := c.api.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp == nil {
		return errors.New("sendgrid send: empty response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return nil
}

// DeliveryError is a rejected send.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Sprintf("sendgrid responded %d: %s", e.StatusCode, body)
}

// Permanent reports whether retrying the same message cannot succeed.
func (e *DeliveryError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// IsPermanent unwraps err looking for a permanent DeliveryError.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent()
}
