package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSMSSender writes SMS messages to the log instead of a gateway. It is the
// sender used when no SMS gateway is configured.
type LogSMSSender struct {
	logger zerolog.Logger
}

func NewLogSMSSender(logger zerolog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger.With().Str("component", "sms").Logger()}
}

func (s *LogSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().Str("to", to).Int("length", len([]rune(body))).Msg("sms queued")
	return nil
}
