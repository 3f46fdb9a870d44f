package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/core/metrics"
	"github.com/EasyTier/EasyLink/pkg/types"
)

func (s *Server) registerRoutes() {
	r := s.router

	r.GET("/health", s.handleHealth)
	if s.cfg.EnableMetrics {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/instances", s.handleStartInstance)
	v1.GET("/instances", s.handleListInstances)
	v1.GET("/instances/:id", s.handleGetInstance)
	v1.GET("/instances/:id/config", s.handleRunningConfig)
	v1.DELETE("/instances/:id", s.handleStopInstance)
	v1.POST("/config/parse", s.handleParseConfig)
	v1.GET("/history", s.handleHistory)
	if s.hub != nil {
		v1.GET("/ws", func(c *gin.Context) {
			s.hub.ServeWS(c.Writer, c.Request)
		})
	}
}

// ============================================================================
//                              处理器
// ============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).String(),
		"instances": len(s.backend.CollectInfos()),
	}
	if s.hub != nil {
		body["ws_clients"] = s.hub.Clients()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleStartInstance(c *gin.Context) {
	var nc config.NetworkConfig
	if err := c.ShouldBindJSON(&nc); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("decode network config: %w", err))
		return
	}

	if err := s.backend.StartInstance(&nc); err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": types.NormalizeID(nc.ID)})
}

// handleListInstances 返回 id -> 快照
func (s *Server) handleListInstances(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.CollectInfos())
}

func (s *Server) handleGetInstance(c *gin.Context) {
	id := c.Param("id")
	snap, ok := s.backend.Instance(id)
	if !ok {
		abortWithError(c, http.StatusNotFound, fmt.Errorf("instance not found: %s", id))
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleRunningConfig(c *gin.Context) {
	id := c.Param("id")
	toml, ok := s.backend.RunningConfig(id)
	if !ok {
		abortWithError(c, http.StatusNotFound, fmt.Errorf("instance not found: %s", id))
		return
	}
	c.Data(http.StatusOK, "application/toml; charset=utf-8", []byte(toml))
}

// handleStopInstance 停止超时返回 202：实例已移除，清理在后台继续
func (s *Server) handleStopInstance(c *gin.Context) {
	id := types.NormalizeID(c.Param("id"))
	err := s.backend.StopInstance(c.Request.Context(), id)
	switch status := statusFor(err); {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"id": id, "stopped": true})
	case status == http.StatusAccepted:
		c.JSON(status, gin.H{"id": id, "stopped": true, "detached": true, "error": err.Error()})
	default:
		abortWithError(c, status, err)
	}
}

func (s *Server) handleParseConfig(c *gin.Context) {
	var nc config.NetworkConfig
	if err := c.ShouldBindJSON(&nc); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("decode network config: %w", err))
		return
	}

	out, err := s.backend.ParseConfig(&nc)
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"toml": out})
}

// handleHistory 最近停止的实例，从新到旧
func (s *Server) handleHistory(c *gin.Context) {
	history := s.backend.History()
	out := make([]types.InstanceSnapshot, len(history))
	for i, snap := range history {
		out[len(history)-1-i] = snap
	}
	c.JSON(http.StatusOK, out)
}
