package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// 流水号、转账引用号、预约还款单号都基于同一个生成器，保证全局唯一且趋势递增
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

var (
	defaultMu        sync.Mutex
	defaultGenerator *Snowflake
)

// Init 设置默认生成器的机器ID
func Init(workerID int64) error {
	g, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultGenerator = g
	defaultMu.Unlock()
	return nil
}

func NextID() int64 {
	defaultMu.Lock()
	if defaultGenerator == nil {
		defaultGenerator = &Snowflake{workerID: 1}
	}
	g := defaultGenerator
	defaultMu.Unlock()
	return g.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// 前缀 + 年月日时分秒 + 雪花ID
func generate(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%d", prefix, time.Now().Format("20060102150405"), id)
}

// GenerateTransactionNo 流水号 TXN...
func GenerateTransactionNo() string {
	return generate("TXN")
}

// GenerateTransferRef 转账引用号 TRF...，同一笔转账的两条腿共享
func GenerateTransferRef() string {
	return generate("TRF")
}

// GeneratePaymentNo 预约还款单号 SCP...
func GeneratePaymentNo() string {
	return generate("SCP")
}
