package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 WebSocket 升级等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSignalRoutes 注册信号服务路由
func (r *Router) RegisterSignalRoutes(alerts *AlertHandler, mood *MoodHandler, ws http.Handler) {
	// WebSocket 接入
	r.HandleHandler("/signal/api/v1/ws", ws)

	// alerts list
	r.Handle("/signal/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alerts.ListAlerts(w, req)
	})

	// alerts/{id}/resolve
	r.Handle("/signal/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		path := req.URL.Path
		if strings.HasSuffix(path, "/resolve") && req.Method == http.MethodPut {
			id := strings.TrimSuffix(path, "/resolve")
			id = strings.TrimPrefix(id, "/signal/api/v1/alerts/")
			if id != "" && !strings.Contains(id, "/") {
				alerts.ResolveAlert(w, req, id)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	// mood stats
	r.Handle("/signal/api/v1/mood/stats", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		mood.MoodStats(w, req)
	})

	// messages list
	r.Handle("/signal/api/v1/messages", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		mood.ListMessages(w, req)
	})

	// health
	r.Handle("/signal/api/v1/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok("healthy"))
	})
}
