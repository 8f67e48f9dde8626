package notifications

import (
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Mailer delivers the "email" channel.
type Mailer interface {
	Send(toName, toAddress, subject, body string) error
}

// SendGridMailer sends plain-text mail through the SendGrid v3 API.
type SendGridMailer struct {
	key  string
	from *sgmail.Email
}

// NewSendGridMailer returns nil when no API key is configured.
func NewSendGridMailer(apiKey, fromAddress string) *SendGridMailer {
	if apiKey == "" {
		logrus.Info("SENDGRID_API_KEY not set; email notifications disabled")
		return nil
	}
	return &SendGridMailer{key: apiKey, from: sgmail.NewEmail("EduCenter", fromAddress)}
}

func (m *SendGridMailer) Send(toName, toAddress, subject, body string) error {
	msg := sgmail.NewSingleEmail(m.from, subject, sgmail.NewEmail(toName, toAddress), body, "")

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(msg)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
