package servers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/docstore/src/configs"
	"github.com/bililive-go/docstore/src/metrics"
	"github.com/bililive-go/docstore/src/pkg/cache"
	"github.com/bililive-go/docstore/src/pkg/history"
	"github.com/bililive-go/docstore/src/pkg/migration"
)

const statusCacheTTL = 5 * time.Second

// Migrator 管理接口需要的迁移操作
type Migrator interface {
	Status(ctx context.Context) (*migration.Status, error)
	Run(ctx context.Context) (*migration.RunResult, error)
	Finalize(ctx context.Context) (*migration.FinalizeResult, error)
}

// HistoryReader 迁移执行记录
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Event, error)
}

// Server 迁移管理接口
type Server struct {
	server  *http.Server
	handler *handler
}

// NewServer 创建管理接口，metrics、hist 与 responses 可为 nil。
// responses 为进程内响应缓存，状态结果以 cachePrefix+"status" 为 key 写入，
// 传入与迁移引擎相同的缓存时 Finalize 会一并清理。
func NewServer(rpc configs.RPC, migrator Migrator, m *metrics.Metrics, hist HistoryReader, responses *cache.Local, cachePrefix string) *Server {
	if responses == nil {
		responses = cache.NewLocal(1, 0)
	}
	h := &handler{
		migrator:  migrator,
		history:   hist,
		status:    responses,
		statusKey: cachePrefix + "status",
		baseCtx:   context.Background(),
	}
	return &Server{
		server: &http.Server{
			Addr:              rpc.Bind,
			Handler:           h.router(m),
			ReadHeaderTimeout: 10 * time.Second,
		},
		handler: h,
	}
}

func (h *handler) router(m *metrics.Metrics) http.Handler {
	router := mux.NewRouter()
	router.Use(log)

	apiRoute := router.PathPrefix("/api").Subrouter()
	apiRoute.HandleFunc("/info", getInfo).Methods("GET")
	apiRoute.HandleFunc("/migrations", h.getStatus).Methods("GET")
	apiRoute.HandleFunc("/migrations/history", h.getHistory).Methods("GET")
	apiRoute.HandleFunc("/migrations/run", h.run).Methods("POST")
	apiRoute.HandleFunc("/migrations/finalize", h.finalize).Methods("POST")

	if m != nil {
		router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}
	return router
}

// Start 开始监听，ctx 结束时正在执行的迁移会被取消
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.handler.baseCtx = ctx
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("admin server stopped")
		}
	}()
	logrus.WithField("bind", ln.Addr().String()).Info("admin server started")
	return nil
}

// Close 优雅关闭
func (s *Server) Close(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
