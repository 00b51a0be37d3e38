package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/hildam/fin-flow-go/biz/handler"
)

// Register 注册路由
func Register(h *server.Hertz, hd *handler.Handler) {
	h.POST("/simulate_deposit", hd.SimulateDeposit)
	h.POST("/action", hd.Action)
	h.POST("/chat_response", hd.ChatResponse)
	h.POST("/approve_all_proposals", hd.ApproveAll)
	h.POST("/reject_all_proposals", hd.RejectAll)
	h.POST("/kafka/publish", hd.Publish)
	h.GET("/stream", hd.Stream)
	h.GET("/health", hd.Health)
}

// NewServer 创建 HTTP 服务，客户端断开时取消请求 ctx 以便及时释放订阅
func NewServer(addr string, hd *handler.Handler) *server.Hertz {
	h := server.New(
		server.WithHostPorts(addr),
		server.WithSenseClientDisconnection(true),
	)
	Register(h, hd)
	return h
}
