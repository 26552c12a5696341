package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 事务性发件箱
// 与账本流水在同一个数据库事务内写入，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	EventType  string    `gorm:"type:varchar(32);not null" json:"event_type"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// LedgerEvent 投递到 Kafka 的账本事件
type LedgerEvent struct {
	Operation    string            `json:"operation"`
	Transactions []TransactionView `json:"transactions"`
	Balance      string            `json:"balance"`
	HouseFee     string            `json:"house_fee,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// NewLedgerOutbox 以主流水号作为消息 key，保证同一笔业务的消息有序
func NewLedgerOutbox(topic, key string, event *LedgerEvent) (*OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  "ledger." + event.Operation,
		Payload:    string(payload),
		Status:     OutboxStatusPending,
	}, nil
}
