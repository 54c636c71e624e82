package job

import (
	"context"
	"sync"
	"time"

	"retailbank/internal/config"
	"retailbank/internal/infrastructure/mq"
	"retailbank/internal/model"
	"retailbank/internal/repository"
	"retailbank/pkg/logger"

	"gorm.io/gorm"
)

// OutboxSender 轮询本地消息表，把结算事件投递到 Kafka
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	maxRetry   int
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config) *OutboxSender {
	interval := time.Duration(cfg.Business.OutboxIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		maxRetry:   cfg.Business.MaxRetryCount,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logger.Infof("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logger.Infof("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessPendingMessages(ctx)
		}
	}
}

// Stop 通知 Start 在当前批次处理完后退出，可重复调用
func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ProcessPendingMessages 处理一批待投递消息，返回成功条数
func (s *OutboxSender) ProcessPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		logger.Errorf("[OutboxSender] 查询消息失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload, map[string]string{
		"event_type": msg.EventType,
	})

	if err == nil {
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			logger.Errorf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
			return false
		}
		logger.Debugf("[OutboxSender] 消息发送成功: id=%d, topic=%s, key=%s", msg.ID, msg.Topic, msg.MessageKey)
		return true
	}

	logger.Warnf("[OutboxSender] 消息发送失败: id=%d, err=%v", msg.ID, err)

	exhausted, recordErr := s.outboxRepo.RecordFailure(ctx, msg, s.maxRetry)
	if recordErr != nil {
		logger.Errorf("[OutboxSender] 记录失败次数失败: id=%d, err=%v", msg.ID, recordErr)
	} else if exhausted {
		logger.Errorf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d, event=%s", msg.ID, msg.EventType)
	}
	return false
}
