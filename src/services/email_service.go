package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/fundfolio/backend/src/config"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// EmailService notifies the data operator when a recomputation rejects one or
// more (fund, security) groups.
type EmailService interface {
	SendFaultNotification(userID int64, faults []models.GroupFault) error
}

func NewEmailService() EmailService {
	if config.Cfg == nil {
		logger.L.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:            mg,
			senderEmail:   config.Cfg.SenderEmail,
			senderName:    config.Cfg.SenderName,
			operatorEmail: config.Cfg.OperatorEmail,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &SMTPEmailService{
			SMTPServer:    config.Cfg.SMTPServer,
			SMTPPort:      config.Cfg.SMTPPort,
			SMTPUser:      config.Cfg.SMTPUser,
			SMTPPassword:  config.Cfg.SMTPPassword,
			SenderEmail:   config.Cfg.SenderEmail,
			OperatorEmail: config.Cfg.OperatorEmail,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

// faultNotificationBody renders the plain-text fault report shared by all
// providers.
func faultNotificationBody(userID int64, faults []models.GroupFault) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The ledger recomputation for user %d rejected %d group(s):\n\n", userID, len(faults))
	for _, f := range faults {
		if f.Date.IsZero() {
			fmt.Fprintf(&b, "- fund %s, security %s: %s\n", f.FundID, f.ISIN, f.Reason)
		} else {
			fmt.Fprintf(&b, "- fund %s, security %s, date %s: %s\n", f.FundID, f.ISIN, utils.FormatDate(f.Date), f.Reason)
		}
	}
	b.WriteString("\nThe affected groups are excluded from all reports until the source data is corrected.\n")
	return b.String()
}

type SMTPEmailService struct {
	SMTPServer    string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SenderEmail   string
	OperatorEmail string
}

func (s *SMTPEmailService) SendFaultNotification(userID int64, faults []models.GroupFault) error {
	from := s.SenderEmail
	to := []string{s.OperatorEmail}
	subject := fmt.Sprintf("Fundfolio: %d processing fault(s) for user %d", len(faults), userID)
	body := faultNotificationBody(userID, faults)

	header := make(map[string]string)
	header["From"] = from
	header["To"] = s.OperatorEmail
	header["Subject"] = subject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body

	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	if err := smtp.SendMail(addr, auth, from, to, []byte(message)); err != nil {
		logger.L.Error("Failed to send fault notification via SMTP", "error", err, "to", s.OperatorEmail)
		return fmt.Errorf("failed to send fault notification via SMTP: %w", err)
	}
	logger.L.Info("Fault notification sent successfully via SMTP", "to", s.OperatorEmail, "faults", len(faults))
	return nil
}

type MailgunEmailService struct {
	mg            mailgun.Mailgun
	senderEmail   string
	senderName    string
	operatorEmail string
}

func (s *MailgunEmailService) SendFaultNotification(userID int64, faults []models.GroupFault) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := fmt.Sprintf("Fundfolio: %d processing fault(s) for user %d", len(faults), userID)

	message := s.mg.NewMessage(from, subject, faultNotificationBody(userID, faults), s.operatorEmail)
	message.AddTag("processing-fault")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send fault notification via Mailgun", "error", err, "to", s.operatorEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Fault notification sent successfully via Mailgun", "to", s.operatorEmail, "id", id, "mailgunResp", resp)
	return nil
}

type MockEmailService struct{}

func (m *MockEmailService) SendFaultNotification(userID int64, faults []models.GroupFault) error {
	logger.L.Info("MockEmailService: Would send fault notification.", "userID", userID, "faults", len(faults))
	return nil
}
