// Package tooltest 提供与金融工具服务行为一致的测试服务
package tooltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Server 金融工具模拟服务
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]float64 // userId -> autoSavingsRate
	calls    map[string]int
	bodies   map[string][]map[string]any
	failures map[string]int
	delays   map[string]time.Duration
}

// NewServer 启动模拟服务，预置 web_ui_user 与 test_user_e2e
func NewServer() *Server {
	s := &Server{
		users:    map[string]float64{"web_ui_user": 0.30, "test_user_e2e": 0.30},
		calls:    make(map[string]int),
		bodies:   make(map[string][]map[string]any),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddUser 注册用户及其自动储蓄比例
func (s *Server) AddUser(userID string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = rate
}

// Fail 指定路径返回给定状态码
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// Delay 指定路径延迟响应
func (s *Server) Delay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// Calls 路径被调用次数
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Bodies 路径收到的请求体
func (s *Server) Bodies(path string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.bodies[path]...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if r.Method == http.MethodGet && path == "health" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": "2.0"})
		return
	}

	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.calls[path]++
	s.bodies[path] = append(s.bodies[path], body)
	status, fail := s.failures[path]
	delay := s.delays[path]
	rate, known := s.users[str(body, "userId", "web_ui_user")]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if fail {
		writeJSON(w, status, map[string]any{"error": "Internal server error"})
		return
	}

	userID := str(body, "userId", "web_ui_user")
	now := time.Now().UnixMilli()
	switch path {
	case "userProfile.get", "userProfile_get":
		if !known {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
			return
		}
		prefs := map[string]any{"autoSavingsRate": rate, "preferredInvestments": []string{"bond", "fund"}, "riskTolerance": "low"}
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":           userID,
			"profile":          map[string]any{"userId": userID, "name": "Demo User", "riskProfile": "conservative", "preferences": prefs},
			"accounts":         map[string]any{"checking": map[string]any{"id": "CHK001", "balance": 50000}, "savings": map[string]any{"id": "SV001", "balance": 15000}},
			"savedPreferences": prefs,
		})
	case "transactions.query":
		if !known {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userId": userID,
			"total":  2,
			"transactions": []map[string]any{
				{"id": "tx1001", "amount": 25000, "type": "salary_deposit", "timestamp": now},
				{"id": "tx1002", "amount": 7500, "type": "savings_transfer", "timestamp": now - 86400000, "status": "completed"},
			},
		})
	case "risk.scoreTransaction":
		tx, _ := body["tx"].(map[string]any)
		score, reason := 0.05, "low risk"
		amount, _ := tx["amount"].(float64)
		switch {
		case str(tx, "type", "") == "salary_deposit":
			score, reason = 0.02, "regular salary deposit"
		case amount > 50000:
			score, reason = 0.15, "large amount transaction"
		case str(tx, "type", "") == "external_transfer":
			score, reason = 0.25, "external transfer"
		}
		rec := "review"
		if score < 0.1 {
			rec = "approve"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"score": score, "reason": reason, "factors": []string{"amount", "type", "user_history"},
			"recommendation": rec, "userId": userID, "timestamp": now,
		})
	case "market.quotes":
		assetType := str(body, "assetType", "bond")
		tenor := str(body, "tenor", "1Y")
		writeJSON(w, http.StatusOK, map[string]any{
			"assetType": assetType, "tenor": tenor, "quotes": quotes(assetType, tenor),
			"updatedAt": now, "marketStatus": "open",
		})
	case "savings.createTransfer":
		writeJSON(w, http.StatusOK, map[string]any{
			"status": str(body, "status", "pending"), "txId": fmt.Sprintf("tx-%d", now%10000), "userId": userID,
			"amount": body["amount"], "from": body["fromAccount"], "to": body["toSavingsId"],
			"createdAt": time.Now().Format(time.RFC3339),
		})
	case "payments.modifyTransfer":
		newAmount, _ := body["newAmount"].(float64)
		orig, _ := body["originalAmount"].(float64)
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok", "action": "transfer_modified", "txId": str(body, "transferId", "tx-1"), "userId": userID,
			"originalAmount": orig, "newAmount": newAmount, "difference": newAmount - orig,
			"message": fmt.Sprintf("Transfer miktarı %v₺ olarak güncellendi", newAmount),
		})
	case "investment.updatePreference":
		pref := str(body, "preferredInvestment", "bond")
		alloc, ok := body["allocation"].(float64)
		if !ok {
			alloc = 100
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok", "action": "preference_updated", "userId": userID,
			"preferredInvestment": pref, "allocation": alloc,
			"message": fmt.Sprintf("%s yatırım tercihi %%%v olarak ayarlandı", pref, alloc),
		})
	case "risk.performAnalysis":
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok", "action": "risk_analysis_completed", "userId": userID,
			"analysis": map[string]any{
				"overallScore": 0.05,
				"categories":   map[string]any{"transactionRisk": 0.02, "marketRisk": 0.08, "liquidityRisk": 0.03, "creditRisk": 0.01},
				"riskLevel":    "low",
			},
			"message":   "Risk analizi tamamlandı. Genel risk skoru: 0.05",
			"timestamp": now,
		})
	case "general.getAdvice":
		q := strings.ToLower(str(body, "question", ""))
		advice := "Genel finansal danışmanlık hizmeti sağlandı."
		switch {
		case strings.Contains(q, "tahvil"):
			advice = "Tahvil yatırımları düşük riskli ve sabit getiri sağlar. Devlet tahvilleri önerilir."
		case strings.Contains(q, "hisse"):
			advice = "Hisse senedi yatırımları yüksek riskli ancak uzun vadede yüksek getiri potansiyeli sunar."
		case strings.Contains(q, "tasarruf"):
			advice = "Tasarruf oranınızı %30 civarında tutmanız önerilir."
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok", "action": "advice_provided", "userId": userID,
			"question": body["question"], "advice": advice, "timestamp": now,
		})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown tool"})
	}
}

func quotes(assetType, tenor string) []map[string]any {
	switch strings.ToLower(assetType) {
	case "bond":
		all := []map[string]any{
			{"instrument": "GovBond1Y", "rate": 0.28, "risk": "low", "duration": "1Y"},
			{"instrument": "GovBond2Y", "rate": 0.32, "risk": "low", "duration": "2Y"},
			{"instrument": "CorpBond1Y", "rate": 0.35, "risk": "medium", "duration": "1Y"},
		}
		out := make([]map[string]any, 0, len(all))
		for _, q := range all {
			if q["duration"] == tenor {
				out = append(out, q)
			}
		}
		return out
	case "equity":
		return []map[string]any{
			{"instrument": "BIST100", "rate": 0.35, "risk": "high"},
			{"instrument": "BlueChip", "rate": 0.25, "risk": "medium"},
		}
	case "fund":
		return []map[string]any{
			{"instrument": "BESFund", "rate": 0.22, "risk": "medium"},
			{"instrument": "MixedFund", "rate": 0.18, "risk": "low"},
		}
	default:
		return []map[string]any{
			{"instrument": "GovBond1Y", "rate": 0.28, "risk": "low"},
			{"instrument": "MixedFund", "rate": 0.18, "risk": "low"},
		}
	}
}

func str(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
