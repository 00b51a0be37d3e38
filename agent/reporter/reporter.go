package reporter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/llm"
	"github.com/hildam/fin-flow-go/repo/template"
)

var (
	recommendations = []string{
		"Düzenli olarak portföyünüzü gözden geçirin",
		"Risk toleransınıza uygun yatırımlar yapın",
		"Acil durum fonunuzu koruyun",
	}
	nextSteps = []string{
		"Yatırım performansını takip edin",
		"Piyasa koşullarını gözlemleyin",
		"Finansal hedeflerinizi güncelleyin",
	}
)

// BuildReport 汇总执行结果生成最终报告，第二个返回值表示是否来自模型
func BuildReport(ctx context.Context, d *comm.Deps, st *model.RunState, plan *model.ExecutionPlan, actions []model.AgentAction, force bool) (*model.FinalReport, bool) {
	if force {
		return FallbackReport(actions), false
	}

	results, _ := json.MarshalIndent(actions, "", "  ")
	analysis, _ := json.MarshalIndent(plan, "", "  ")
	msgs, err := template.Render(ctx, "reporter", map[string]any{
		"user_id":           st.UserID,
		"correlation_id":    st.CorrelationID,
		"execution_results": string(results),
		"analysis_result":   string(analysis),
	}, schema.UserMessage("Final raporu hazırla"))
	if err != nil {
		slog.Error("BuildReport failed, render prompt err = %v", err)
		return FallbackReport(actions), false
	}
	msgs = comm.ModifyInputFunc(ctx, d.Config.Setting.MaxLimitToken, msgs)

	report, fromModel := llm.StrongJSON(ctx, d.Models, msgs, "final_report", func() model.FinalReport {
		return *FallbackReport(actions)
	}, validate)
	slog.Info("BuildReport done, %s, status = %s, fromModel = %v", comm.Describe(st), report.Status, fromModel)
	return &report, fromModel
}

// FallbackReport 根据动作结果直接生成报告
func FallbackReport(actions []model.AgentAction) *model.FinalReport {
	report := &model.FinalReport{
		Summary:              fmt.Sprintf("Toplam %d agent başarıyla çalıştırıldı", len(actions)),
		SuccessfulOperations: []string{},
		FailedOperations:     []string{},
		Recommendations:      append([]string(nil), recommendations...),
		NextSteps:            append([]string(nil), nextSteps...),
		Status:               consts.StatusCompleted,
	}
	for _, a := range actions {
		if a.Error != "" {
			report.FailedOperations = append(report.FailedOperations, fmt.Sprintf("%s: %s", a.Agent, a.Error))
			continue
		}
		report.SuccessfulOperations = append(report.SuccessfulOperations, fmt.Sprintf("%s: %s", a.Agent, a.Action))
		report.TotalAmountProcessed += a.Amount
	}
	if len(report.FailedOperations) > 0 {
		report.Status = consts.StatusPartial
	}
	return report
}

func validate(r *model.FinalReport) error {
	switch r.Status {
	case consts.StatusCompleted, consts.StatusPartial, consts.StatusFailed:
	default:
		return fmt.Errorf("unknown report status %q", r.Status)
	}
	if r.Summary == "" {
		return fmt.Errorf("empty report summary")
	}
	return nil
}
