package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplateRendersReceipt(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.local", Port: 2525, From: "dojo@example.com"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"ana@example.com"}, TemplatePaymentReceipt, map[string]any{
		"amount":       "1,450.00 MXN",
		"plan":         "Basic",
		"payment_type": "one-time",
		"reference":    "pi_1",
		"date":         "2026-05-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your payment receipt")
	assert.Contains(t, gotMsg, "1,450.00 MXN")
	assert.Contains(t, gotMsg, "pi_1")
}

func TestSendRequiresRecipient(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.local", Port: 25})
	assert.Error(t, p.Send(context.Background(), nil, "s", "b"))
}

func TestSendTemplateUnknownTemplate(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.local", Port: 25})
	assert.Error(t, p.SendTemplate(context.Background(), []string{"a@example.com"}, "missing", nil))
}
