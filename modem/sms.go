package modem

import (
	"context"
	"fmt"

	"i4.energy/across/cellular/at"
)

// SMS represents a text message stored on the modem.
type SMS = at.ListEntry

// SendSMS sends a text message to the specified recipient.
//
// The message is sent in text mode (not PDU mode). The recipient should be
// in international format (e.g., "+1234567890").
//
// This method blocks until the message is accepted by the network or an error
// occurs. Network delivery (to the final recipient) happens asynchronously.
func (m *Modem) SendSMS(ctx context.Context, recipient, message string) error {
	if err := m.ready(); err != nil {
		return err
	}
	if err := at.CheckParam(recipient); err != nil {
		return fmt.Errorf("SMS recipient: %w", err)
	}
	if err := at.CheckPayload([]byte(message)); err != nil {
		return fmt.Errorf("SMS body: %w", err)
	}

	exchange, err := m.channel.Prompt(ctx, at.SendMessage(recipient), m.config.atTimeout)
	if err != nil {
		return fmt.Errorf("open SMS prompt: %w", err)
	}

	resp, err := exchange.Submit(ctx, []byte(message), m.config.smsTimeout)
	if err != nil {
		return fmt.Errorf("SMS send failed: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: SMS to %s: %s", ErrProtocolRejected, recipient, resp.rejection())
	}

	m.logger.Info("SMS sent", "recipient", recipient, "length", len(message))
	return nil
}

// ListMessages returns the stored messages matching status, one of the
// at.Status* filters.
func (m *Modem) ListMessages(ctx context.Context, status string) ([]SMS, error) {
	resp, err := m.exec(ctx, at.ListMessages(status), m.config.atTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Rejected() {
		return nil, fmt.Errorf("%w: list %s: %s", ErrProtocolRejected, status, resp.rejection())
	}
	return at.ParseList(resp.Text)
}

// ReadMessages returns the received messages that were already read.
func (m *Modem) ReadMessages(ctx context.Context) ([]SMS, error) {
	return m.ListMessages(ctx, at.StatusRead)
}

// UnreadMessages returns the received messages not read yet. Listing them
// marks them read on the device.
func (m *Modem) UnreadMessages(ctx context.Context) ([]SMS, error) {
	return m.ListMessages(ctx, at.StatusUnread)
}

// DeleteMessage removes the message stored at index.
func (m *Modem) DeleteMessage(ctx context.Context, index int) error {
	if _, err := m.expectOK(ctx, at.DeleteMessage(index), m.config.atTimeout); err != nil {
		return fmt.Errorf("delete message %d: %w", index, err)
	}
	return nil
}
