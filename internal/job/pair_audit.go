package job

import (
	"context"
	"sync"
	"time"

	"retailbank/internal/config"
	"retailbank/internal/model"
	"retailbank/internal/repository"
	"retailbank/pkg/logger"

	"gorm.io/gorm"
)

// PairAnomaly 行内转账两条腿不一致
type PairAnomaly struct {
	Leg    *model.Transaction
	Reason string
}

// PendingPairAuditJob 巡检长时间未审批的行内转账
//
// 正常情况下两条腿同时 PENDING、同时结束。只剩一条 PENDING 说明另一条丢失或被单独修改，
// 这种流水审批时必然返回 ErrCorrespondingEntryNotFound，这里提前以 ERROR 级别报出来，由人工处理
type PendingPairAuditJob struct {
	transactionRepo *repository.TransactionRepository
	stopCh          chan struct{}
	stopOnce        sync.Once
	interval        time.Duration
	staleAfter      time.Duration
	batchSize       int
}

func NewPendingPairAuditJob(db *gorm.DB, cfg *config.Config) *PendingPairAuditJob {
	interval := time.Duration(cfg.Business.PairAuditIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &PendingPairAuditJob{
		transactionRepo: repository.NewTransactionRepository(db),
		stopCh:          make(chan struct{}),
		interval:        interval,
		staleAfter:      time.Duration(cfg.Business.PairAuditStaleMinutes) * time.Minute,
		batchSize:       100,
	}
}

func (j *PendingPairAuditJob) Start(ctx context.Context) {
	logger.Infof("[PendingPairAuditJob] 巡检任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("[PendingPairAuditJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logger.Infof("[PendingPairAuditJob] 任务停止")
			return
		case <-ticker.C:
			j.Audit(ctx, time.Now())
		}
	}
}

func (j *PendingPairAuditJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// Audit 检查 now - staleAfter 之前创建的 PENDING 行内转账腿
func (j *PendingPairAuditJob) Audit(ctx context.Context, now time.Time) []PairAnomaly {
	legs, err := j.transactionRepo.GetStalePendingInternal(ctx, now.Add(-j.staleAfter), j.batchSize)
	if err != nil {
		logger.Errorf("[PendingPairAuditJob] 查询流水失败: %v", err)
		return nil
	}

	var anomalies []PairAnomaly
	for _, leg := range legs {
		if reason := j.check(ctx, leg); reason != "" {
			logger.Errorf("[PendingPairAuditJob] 行内转账不一致: id=%d, ref=%s, type=%s, amount=%s, reason=%s",
				leg.ID, leg.TransferRef, leg.Type, leg.Amount.StringFixed(2), reason)
			anomalies = append(anomalies, PairAnomaly{Leg: leg, Reason: reason})
		}
	}

	if len(anomalies) > 0 {
		logger.Warnf("[PendingPairAuditJob] 本次发现 %d 条异常流水", len(anomalies))
	}
	return anomalies
}

func (j *PendingPairAuditJob) check(ctx context.Context, leg *model.Transaction) string {
	if leg.TransferRef == "" {
		return ""
	}

	legs, err := j.transactionRepo.ListByTransferRef(ctx, nil, leg.TransferRef)
	if err != nil {
		logger.Errorf("[PendingPairAuditJob] 查询同批流水失败: ref=%s, err=%v", leg.TransferRef, err)
		return ""
	}

	var counterpart *model.Transaction
	for _, other := range legs {
		if other.ID != leg.ID {
			counterpart = other
			break
		}
	}

	switch {
	case counterpart == nil:
		return "missing counterpart"
	case counterpart.Status != model.TransactionStatusPending:
		return "counterpart is " + counterpart.Status
	case !counterpart.Amount.Equal(leg.Amount):
		return "amount mismatch"
	}
	return ""
}
