package mailer

type Service interface {
	SendVerificationEmail(toEmail, username, verifyURL, token string) error
	SendRecoveryCodeEmail(toEmail, username, code string) error
}
