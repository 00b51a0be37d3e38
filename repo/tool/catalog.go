package tool

import (
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/fin-flow-go/entity/consts"
)

var (
	catalogMu sync.RWMutex
	// catalog 工具路径 -> 模型可见的工具声明
	catalog = map[string]*schema.ToolInfo{
		consts.ToolUserProfileGet: {
			Desc: "Kullanıcı profilini, hesaplarını ve kayıtlı tercihlerini (autoSavingsRate) getirir.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"userId": {Type: schema.String, Desc: "Kullanıcı kimliği", Required: true},
			}),
		},
		consts.ToolTransactionsQuery: {
			Desc: "Kullanıcının son işlemlerini listeler.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"userId": {Type: schema.String, Desc: "Kullanıcı kimliği", Required: true},
				"since":  {Type: schema.Integer, Desc: "Bu zamandan sonraki işlemler (unix ms)"},
				"limit":  {Type: schema.Integer, Desc: "En fazla kaç işlem"},
			}),
		},
		consts.ToolRiskScoreTransaction: {
			Desc: "Bir işlem için 0-1 arası risk skoru hesaplar.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"userId": {Type: schema.String, Desc: "Kullanıcı kimliği", Required: true},
				"tx": {Type: schema.Object, Desc: "Değerlendirilecek işlem", Required: true, SubParams: map[string]*schema.ParameterInfo{
					"amount": {Type: schema.Integer, Desc: "Tutar"},
					"type":   {Type: schema.String, Desc: "İşlem tipi"},
					"from":   {Type: schema.String, Desc: "Kaynak hesap"},
					"to":     {Type: schema.String, Desc: "Hedef hesap"},
				}},
			}),
		},
		consts.ToolMarketQuotes: {
			Desc: "Bir varlık türü için piyasa fiyatlarını getirir.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"assetType": {Type: schema.String, Desc: "Varlık türü", Required: true, Enum: []string{consts.AssetBond, consts.AssetEquity, consts.AssetFund, consts.AssetSavings}},
				"tenor":     {Type: schema.String, Desc: "Vade, örn. 1Y"},
			}),
		},
		consts.ToolSavingsCreateTransfer: {
			Desc: "Vadesiz hesaptan tasarruf hesabına transfer oluşturur.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"userId":      {Type: schema.String, Required: true},
				"fromAccount": {Type: schema.String, Required: true},
				"toSavingsId": {Type: schema.String, Required: true},
				"amount":      {Type: schema.Integer, Required: true},
			}),
		},
		consts.ToolPaymentsModifyTransfer: {
			Desc: "Planlanan transfer tutarını değiştirir.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"userId":         {Type: schema.String, Required: true},
				"newAmount":      {Type: schema.Integer, Required: true},
				"originalAmount": {Type: schema.Integer},
				"transferId":     {Type: schema.String},
			}),
		},
		consts.ToolRiskPerformAnalysis: {
			Desc: "Kapsamlı risk analizi yapar.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"userId":       {Type: schema.String, Required: true},
				"analysisType": {Type: schema.String},
			}),
		},
		consts.ToolInvestmentUpdatePref: {
			Desc: "Yatırım tercihini günceller.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"userId":              {Type: schema.String, Required: true},
				"preferredInvestment": {Type: schema.String, Required: true},
				"allocation":          {Type: schema.Integer},
			}),
		},
		consts.ToolGeneralGetAdvice: {
			Desc: "Genel finansal tavsiye verir.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"userId":   {Type: schema.String, Required: true},
				"question": {Type: schema.String, Required: true},
			}),
		},
	}
)

// ModelName 工具路径转为模型函数名，userProfile.get -> userProfile_get
func ModelName(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

// PathOf 由模型函数名反查工具路径
func PathOf(name string) (string, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	for path := range catalog {
		if ModelName(path) == name || path == name {
			return path, true
		}
	}
	return "", false
}

// Infos 返回给定路径的工具声明，名称已转换为模型函数名
func Infos(paths ...string) []*schema.ToolInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make([]*schema.ToolInfo, 0, len(paths))
	for _, path := range paths {
		info, ok := catalog[path]
		if !ok {
			continue
		}
		cp := *info
		cp.Name = ModelName(path)
		out = append(out, &cp)
	}
	return out
}

// Merge 使用服务端声明覆盖本地声明，只接收已知路径
func Merge(infos []*schema.ToolInfo) int {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	n := 0
	for _, info := range infos {
		if info == nil {
			continue
		}
		for path := range catalog {
			if info.Name == path || info.Name == ModelName(path) {
				cp := *info
				catalog[path] = &cp
				n++
				break
			}
		}
	}
	return n
}
