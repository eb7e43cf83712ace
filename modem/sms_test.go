package modem_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"
	"i4.energy/across/cellular/at"
	"i4.energy/across/cellular/modem"
)

func TestSendSMS(t *testing.T) {
	// SendSMS must not write the message body before the device printed its
	// prompt. The scripted transport only answers the body write after the
	// prompt exchange, so a body sent early would miss its expectation.
	t.Run("Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		m, _, seq := newMockModem(t, ctrl)
		gomock.InOrder(seq.
			Payload(`AT+CMGS="+1234567890"`, "Hello World", "\r\n+CMGS: 123\r\n\r\nOK\r\n").
			Close(nil).
			Build()...)
		defer m.Close()

		if err := m.SendSMS(context.Background(), "+1234567890", "Hello World"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Error on no prompt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		m, _, seq := newMockModem(t, ctrl)
		gomock.InOrder(seq.
			Exchange(`AT+CMGS="+1234567890"`, "+CMS ERROR: 304\r\n").
			Close(nil).
			Build()...)
		defer m.Close()

		err := m.SendSMS(context.Background(), "+1234567890", "Hello World")
		if !errors.Is(err, modem.ErrProtocolRejected) {
			t.Errorf("expected ErrProtocolRejected, got: %v", err)
		}
	})

	t.Run("Network rejects message", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		m, _, seq := newMockModem(t, ctrl)
		gomock.InOrder(seq.
			Payload(`AT+CMGS="+1234567890"`, "Hello World", "\r\n+CMS ERROR: 500\r\n").
			Exchange("AT", "OK\r\n").
			Close(nil).
			Build()...)
		defer m.Close()

		ctx := context.Background()
		err := m.SendSMS(ctx, "+1234567890", "Hello World")
		if !errors.Is(err, modem.ErrProtocolRejected) {
			t.Errorf("expected ErrProtocolRejected, got: %v", err)
		}

		// the channel is released for the next command
		resp, err := m.Command(ctx, "AT", 0)
		if err != nil || !resp.OK() {
			t.Errorf("expected OK after rejected SMS, got %q, %v", resp.Text, err)
		}
	})
}

func TestSendSMSInvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		message   string
	}{
		{"recipient appends a command", "+123\"\rAT+CFUN=0\r", "hi"},
		{"recipient with line feed", "+123\n", "hi"},
		{"body ends the payload early", "+123", "hello\x1aAT+CFUN=0\r"},
		{"body aborts the payload", "+123", "hello\x1b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			// nothing but Close may reach the transport
			m, _, seq := newMockModem(t, ctrl)
			gomock.InOrder(seq.Close(nil).Build()...)
			defer m.Close()

			err := m.SendSMS(context.Background(), tt.recipient, tt.message)
			if !errors.Is(err, modem.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got: %v", err)
			}
		})
	}
}

func TestListMessages(t *testing.T) {
	listing := "\r\n" +
		`+CMGL: 1,"REC READ","+491701234567",,"24/03/05,13:45:30+08"` + "\r\n" +
		"Meter reading 1234\r\n" +
		`+CMGL: 4,"REC READ","+491709876543","Alice","24/03/06,08:00:00-04"` + "\r\n" +
		"first line\r\n" +
		"second line\r\n" +
		"\r\n" +
		"OK\r\n"

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m, _, seq := newMockModem(t, ctrl)
	gomock.InOrder(seq.
		Exchange(`AT+CMGL="REC READ"`, listing).
		Exchange(`AT+CMGL="REC UNREAD"`, "\r\nOK\r\n").
		Exchange(`AT+CMGL="ALL"`, "+CMS ERROR: 321\r\n").
		Close(nil).
		Build()...)
	defer m.Close()

	ctx := context.Background()

	messages, err := m.ReadMessages(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	first := messages[0]
	if first.Index != 1 || first.Status != at.StatusRead || first.Sender != "+491701234567" {
		t.Errorf("unexpected first message header: %+v", first)
	}
	if first.Body != "Meter reading 1234" {
		t.Errorf("unexpected first body %q", first.Body)
	}
	if first.Timestamp.Year != 2024 || first.Timestamp.Offset != 8 {
		t.Errorf("unexpected first timestamp %v", first.Timestamp)
	}

	second := messages[1]
	if second.Index != 4 || second.Alpha != "Alice" {
		t.Errorf("unexpected second message header: %+v", second)
	}
	if second.Body != "first line\nsecond line" {
		t.Errorf("unexpected second body %q", second.Body)
	}

	unread, err := m.UnreadMessages(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("expected no unread messages, got %d", len(unread))
	}

	if _, err := m.ListMessages(ctx, at.StatusAll); !errors.Is(err, modem.ErrProtocolRejected) {
		t.Errorf("expected ErrProtocolRejected, got: %v", err)
	}
}

func TestDeleteMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m, _, seq := newMockModem(t, ctrl)
	gomock.InOrder(seq.
		Exchange("AT+CMGD=3", "OK\r\n").
		Exchange("AT+CMGD=99", "+CMS ERROR: 321\r\n").
		Close(nil).
		Build()...)
	defer m.Close()

	ctx := context.Background()
	if err := m.DeleteMessage(ctx, 3); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := m.DeleteMessage(ctx, 99); !errors.Is(err, modem.ErrProtocolRejected) {
		t.Errorf("expected ErrProtocolRejected, got: %v", err)
	}
}

func TestSendUSSD(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m, _, seq := newMockModem(t, ctrl)
	gomock.InOrder(seq.
		Exchange(`AT+CUSD=1,"*100#",15`, "OK\r\n\r\n+CUSD: 0,\"Balance: 5.00 EUR\",15\r\n").
		Exchange(`AT+CUSD=1,"*999#",15`, "+CME ERROR: unknown\r\n").
		Close(nil).
		Build()...)
	defer m.Close()

	ctx := context.Background()
	reply, err := m.SendUSSD(ctx, "*100#")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Balance: 5.00 EUR" {
		t.Errorf("unexpected reply %q", reply)
	}

	if _, err := m.SendUSSD(ctx, "*999#"); !errors.Is(err, modem.ErrProtocolRejected) {
		t.Errorf("expected ErrProtocolRejected, got: %v", err)
	}

	// never written, so no further exchange is scripted
	if _, err := m.SendUSSD(ctx, "*100#\",15\rAT+CFUN=0"); !errors.Is(err, modem.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got: %v", err)
	}
}
