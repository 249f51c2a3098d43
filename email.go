package passgate

import "log/slog"

// SendEmail interface allows applications to provide their own email sending implementation
type SendEmail interface {
	SendPasswordResetEmail(to string, resetLink string) error
}

// ConsoleEmailSender is a development implementation that logs emails instead of sending them
type ConsoleEmailSender struct {
	Logger *slog.Logger
}

func (c *ConsoleEmailSender) SendPasswordResetEmail(to string, resetLink string) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("password reset email",
		"to", to,
		"subject", "Reset your password",
		"link", resetLink,
	)
	return nil
}
