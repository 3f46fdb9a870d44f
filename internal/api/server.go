package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/pkg/lib/log"
	"github.com/EasyTier/EasyLink/pkg/types"
)

var logger = log.Logger("api")

// shutdownTimeout Stop 未提供截止时间时的关闭上限
const shutdownTimeout = 5 * time.Second

// Backend 控制接口依赖的实例管理能力（由 *easylink.Manager 实现）
type Backend interface {
	StartInstance(cfg *config.NetworkConfig) error
	StopInstance(ctx context.Context, id string) error
	CollectInfos() map[string]types.InstanceSnapshot
	Instance(id string) (types.InstanceSnapshot, bool)
	RunningConfig(id string) (string, bool)
	ParseConfig(cfg *config.NetworkConfig) (string, error)
	History() []types.InstanceSnapshot
}

// ============================================================================
//                              Server
// ============================================================================

// Server HTTP 控制接口
type Server struct {
	cfg     config.APIConfig
	backend Backend
	hub     *Hub
	router  *gin.Engine

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	running   bool
	startTime time.Time
}

// New 创建控制接口，hub 为 nil 时不提供 /api/v1/ws
func New(cfg config.APIConfig, backend Backend, hub *Hub) *Server {
	s := &Server{
		cfg:       cfg,
		backend:   backend,
		hub:       hub,
		startTime: time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(requestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s.router = r
	s.registerRoutes()
	return s
}

// normalizeOrigins 未配置时允许本地 GUI 开发服务器
func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:1420", "tauri://localhost"}
	}
	return origins
}

// Handler 返回路由，便于测试与嵌入
func (s *Server) Handler() http.Handler { return s.router }

// Start 监听并在后台提供服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("控制接口异常退出", "err", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	logger.Info("控制接口已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务并断开 websocket 客户端
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	// 被劫持的 websocket 连接不受 Shutdown 管理
	if s.hub != nil {
		_ = s.hub.Close()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("关闭控制接口失败", "err", err)
		return err
	}

	s.running = false
	logger.Info("控制接口已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.ListenAddr
}
