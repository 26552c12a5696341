package idgen

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 流水号要求全局唯一、趋势递增（便于索引）、不暴露业务量。
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits

	// 时钟回拨容忍范围，超过则报错
	maxClockBackwards = 5 * time.Millisecond
)

var ErrClockMovedBackwards = errors.New("系统时钟回拨")

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
	now       func() int64
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{
		workerID: workerID,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Generate 生成ID
func (s *Snowflake) Generate() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if now < s.timestamp {
		// 小幅回拨时等待追上，避免生成重复 ID
		if time.Duration(s.timestamp-now)*time.Millisecond > maxClockBackwards {
			return 0, ErrClockMovedBackwards
		}
		for now < s.timestamp {
			now = s.now()
		}
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = s.now()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence, nil
}

// TransactionNo 生成流水号
// 格式：TXN + 雪花ID（19 位补零），同一实例内严格递增
func (s *Snowflake) TransactionNo() (string, error) {
	id, err := s.Generate()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TXN%019d", id), nil
}
