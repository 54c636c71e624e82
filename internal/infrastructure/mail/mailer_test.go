package mail

import (
	"testing"

	"retailbank/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestNewNotifier(t *testing.T) {
	assert.IsType(t, NopNotifier{}, NewNotifier(&config.SMTPConfig{}))
	assert.NoError(t, NewNotifier(&config.SMTPConfig{}).Send("a@example.com", "s", "b"))

	smtp := NewNotifier(&config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "bank@example.com"})
	assert.IsType(t, &SMTPNotifier{}, smtp)
}

func TestScheduledPaymentFailedBody(t *testing.T) {
	body := ScheduledPaymentFailedBody("SCP1", "4321", "99.00")
	assert.Contains(t, body, "SCP1")
	assert.Contains(t, body, "4321")
	assert.Contains(t, body, "99.00")
}
