package job

import (
	"context"
	"log"
	"time"

	"ewallet/internal/infrastructure/mq"
	"ewallet/internal/model"
	"ewallet/internal/repository"
)

// OutboxSender 把发件箱中的账本事件投递到消息队列
// 至少一次投递：发送成功但状态更新失败时，消息会被再次发送，消费方按 key 去重
type OutboxSender struct {
	outbox    repository.OutboxStore
	publisher mq.Publisher
	maxRetry  int
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOutboxSender(outbox repository.OutboxStore, publisher mq.Publisher, maxRetry int) *OutboxSender {
	return &OutboxSender{
		outbox:    outbox,
		publisher: publisher,
		maxRetry:  maxRetry,
		stopCh:    make(chan struct{}),
		interval:  100 * time.Millisecond,
		batchSize: 100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending 处理一批待发送消息，返回成功发送的条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outbox.MarkAsSent(ctx, msg.ID); updateErr != nil {
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
		}
		return true
	}

	log.Printf("[OutboxSender] 消息发送失败: id=%d, key=%s, err=%v", msg.ID, msg.MessageKey, err)

	failed, recordErr := s.outbox.RecordFailure(ctx, msg, s.maxRetry)
	if recordErr != nil {
		log.Printf("[OutboxSender] 记录失败次数失败: id=%d, err=%v", msg.ID, recordErr)
		return false
	}
	if failed {
		log.Printf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d", msg.ID)
	}
	return false
}
