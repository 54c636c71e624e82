package mail

import (
	"fmt"

	"retailbank/internal/config"
	"retailbank/pkg/logger"

	"gopkg.in/gomail.v2"
)

// Notifier 向账户持有人发送通知
type Notifier interface {
	Send(to, subject, body string) error
}

type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPNotifier(cfg *config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (n *SMTPNotifier) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// NopNotifier 未配置 SMTP 时只记录日志
type NopNotifier struct{}

func (NopNotifier) Send(to, subject, body string) error {
	logger.Infof("[Mail] 未配置 SMTP，跳过邮件: to=%s, subject=%s", to, subject)
	return nil
}

// NewNotifier 根据配置选择实现
func NewNotifier(cfg *config.SMTPConfig) Notifier {
	if cfg.Host == "" {
		return NopNotifier{}
	}
	return NewSMTPNotifier(cfg)
}

func ScheduledPaymentFailedBody(paymentNo, cardLastFour, amount string) string {
	return fmt.Sprintf(`
		<h2>预约还款失败</h2>
		<p>单号: %s</p>
		<p>信用卡尾号: %s</p>
		<p>金额: %s</p>
		<p>原因: 扣款账户余额不足</p>
	`, paymentNo, cardLastFour, amount)
}
