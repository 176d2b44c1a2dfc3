// Package adapters provides the default channel senders. Each one simulates
// the provider call by logging the payload; a deployment swaps in a real
// gateway by satisfying the same service interfaces.
package adapters

import (
	"context"
	"log/slog"

	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
)

// SimulatedSMS logs instead of calling an SMS gateway.
type SimulatedSMS struct {
	logger *slog.Logger
}

func NewSimulatedSMS(logger *slog.Logger) *SimulatedSMS {
	return &SimulatedSMS{logger: logger}
}

func (a *SimulatedSMS) Send(ctx context.Context, phone, message string) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "sms send cancelled")
	}
	if phone == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "user has no phone number")
	}
	a.logger.InfoContext(ctx, "sms delivered",
		slog.String("phone", phone),
		slog.Int("length", len(message)),
	)
	return nil
}

// SimulatedEmail logs instead of calling an email provider.
type SimulatedEmail struct {
	logger *slog.Logger
}

func NewSimulatedEmail(logger *slog.Logger) *SimulatedEmail {
	return &SimulatedEmail{logger: logger}
}

func (a *SimulatedEmail) Send(ctx context.Context, address, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "email send cancelled")
	}
	if address == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "user has no email address")
	}
	a.logger.InfoContext(ctx, "email delivered",
		slog.String("address", address),
		slog.String("subject", subject),
		slog.Int("body_length", len(body)),
	)
	return nil
}

// SimulatedPush logs instead of calling a push provider.
type SimulatedPush struct {
	logger *slog.Logger
}

func NewSimulatedPush(logger *slog.Logger) *SimulatedPush {
	return &SimulatedPush{logger: logger}
}

func (a *SimulatedPush) Send(ctx context.Context, userID id.UserID, title, message string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "push send cancelled")
	}
	a.logger.InfoContext(ctx, "push delivered",
		slog.String("user_id", userID.String()),
		slog.String("title", title),
		slog.Int("data_keys", len(data)),
	)
	return nil
}
