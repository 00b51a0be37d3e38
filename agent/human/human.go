package human

import (
	"github.com/HildaM/logs/slog"

	"github.com/hildam/fin-flow-go/entity/model"
)

// Route 用户交互阶段的路由
// 已有决定时进入执行阶段，否则停在 end 等待外部回复；autoApprove 时自动批准
func Route(st *model.RunState, autoApprove bool) model.Stage {
	if !st.UserAction.IsSet() && autoApprove {
		st.UserAction = model.UserAction{Kind: model.UserActionApprove}
		slog.Info("human route auto approve, correlationId = %s", st.CorrelationID)
	}

	if st.UserAction.IsSet() {
		return model.StageExecution
	}
	return model.StageEnd
}
