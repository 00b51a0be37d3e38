package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HildaM/logs/slog"

	"github.com/hildam/fin-flow-go/entity/consts"
)

// Deposit 入账事件
type Deposit struct {
	UserID        string `json:"userId"`
	Amount        int64  `json:"amount"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// DepositHandler 收到合法入账事件后的回调
type DepositHandler func(ctx context.Context, d Deposit) error

// ConsumeDeposits 消费 transactions.deposit，非法消息记录日志后跳过
func ConsumeDeposits(ctx context.Context, b Broker, start DepositHandler) error {
	return b.Consume(ctx, consts.TopicTransactionsDeposit, consts.DepositConsumerGroupID, func(ctx context.Context, msg Message) error {
		d, err := ParseDeposit(msg.Value)
		if err != nil {
			slog.Error("skip malformed deposit, payload = %s, err = %v", msg.Value, err)
			return nil
		}
		return start(ctx, d)
	})
}

// ParseDeposit 解析并校验入账事件
func ParseDeposit(data []byte) (Deposit, error) {
	var d Deposit
	if err := json.Unmarshal(data, &d); err != nil {
		return Deposit{}, fmt.Errorf("decode deposit: %w", err)
	}
	if d.UserID == "" || d.Amount <= 0 {
		return Deposit{}, fmt.Errorf("invalid deposit, userId = %q, amount = %d", d.UserID, d.Amount)
	}
	return d, nil
}
