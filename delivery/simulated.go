package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/glowupstudio/booth/compose"
)

// DefaultDelay is how long a simulated send takes.
const DefaultDelay = 1500 * time.Millisecond

// ErrInvalidAddress is returned for addresses that do not parse.
var ErrInvalidAddress = errors.New("invalid email address")

// SimulatedSender pretends to email artifacts. It validates the address,
// waits Delay and records the delivery in Outbox, if set. Nothing leaves
// the process.
type SimulatedSender struct {
	Delay  time.Duration
	Outbox Outbox
	Log    zerolog.Logger
	Now    func() time.Time
}

// NewSimulatedSender returns a sender with the default delay.
func NewSimulatedSender(outbox Outbox, log zerolog.Logger) *SimulatedSender {
	return &SimulatedSender{Delay: DefaultDelay, Outbox: outbox, Log: log, Now: time.Now}
}

func (s *SimulatedSender) Send(ctx context.Context, artifact compose.Artifact, address string) error {
	addr, err := ParseAddress(address)
	if err != nil {
		return &Failure{Address: address, Err: err}
	}
	if len(artifact.Data) == 0 {
		return &Failure{Address: addr, Err: ErrNoArtifact}
	}

	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return &Failure{Address: addr, Err: ctx.Err(), Retryable: true}
		case <-t.C:
		}
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	d := Delivery{
		Address:  addr,
		Filename: artifact.Filename,
		MIMEType: artifact.MIMEType,
		Size:     len(artifact.Data),
		SentAt:   now().UTC(),
	}
	if s.Outbox != nil {
		if err := s.Outbox.Record(ctx, d); err != nil {
			return &Failure{Address: addr, Err: fmt.Errorf("record delivery: %w", err), Retryable: true}
		}
	}
	s.Log.Info().Str("to", addr).Str("file", d.Filename).Int("bytes", d.Size).Msg("simulated email sent")
	return nil
}

// ParseAddress accepts a single bare address or "Name <addr>" and returns
// the bare address.
func ParseAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidAddress
	}
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	if !strings.Contains(a.Address[strings.LastIndex(a.Address, "@")+1:], ".") {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	return a.Address, nil
}
