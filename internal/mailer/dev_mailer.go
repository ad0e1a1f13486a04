package mailer

import (
	"github.com/farmlink/market/pkg/logger"
)

// DevMailer logs outgoing mail instead of sending it.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendVerificationEmail(toEmail, username, verifyURL, token string) error {
	logger.Info("[DEV MAIL] verification email",
		"to", toEmail,
		"username", username,
		"verify_url", verifyURL,
		"token", token,
	)
	return nil
}

func (d *DevMailer) SendRecoveryCodeEmail(toEmail, username, code string) error {
	logger.Info("[DEV MAIL] recovery code email",
		"to", toEmail,
		"username", username,
		"code", code,
	)
	return nil
}
