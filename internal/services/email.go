package services

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"
)

// EmailGateway is the outbound mail collaborator. Delivery failures are
// always logged and swallowed by callers; they never block a financial
// state transition.
type EmailGateway interface {
	Send(to []string, subject, body string) error
}

// SMTPEmailGateway sends mail through a plain SMTP relay
type SMTPEmailGateway struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func NewSMTPEmailGateway() *SMTPEmailGateway {
	return &SMTPEmailGateway{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASS"),
		from:     os.Getenv("EMAIL_FROM"),
	}
}

func (s *SMTPEmailGateway) Send(to []string, subject, body string) error {
	if s.host == "" || s.port == "" || s.user == "" || s.password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	message := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", to[0], subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := smtp.SendMail(addr, auth, s.from, to, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// Mail templates for engine notifications. Placeholders are substituted
// with RenderMailTemplate.
const (
	MailTemplateInstallmentFailed = "Hello,\n\n" +
		"the installment payment of $amount for your order $order_code could not be collected:\n" +
		"$reason\n\n" +
		"Please settle the open installment before $grace_end, otherwise your order will be canceled.\n" +
		"You can retry the payment here: $recovery_link\n"

	MailTemplateGraceWarning = "Hello,\n\n" +
		"the grace period for the failed installment of your order $order_code ends on $grace_end.\n" +
		"If the payment is not completed by then, your order will be canceled.\n" +
		"You can retry the payment here: $recovery_link\n"

	MailTemplatePlanCanceled = "Hello,\n\n" +
		"your order $order_code has been canceled because the open installment was not paid " +
		"within the grace period.\n"
)

// RenderMailTemplate substitutes $key placeholders in a mail template
func RenderMailTemplate(template string, vars map[string]string) string {
	res := template
	for key, val := range vars {
		res = strings.ReplaceAll(res, "$"+key, val)
	}
	return res
}
