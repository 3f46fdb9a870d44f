// Package main 提供 easylink 守护进程入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/EasyTier/EasyLink"
	"github.com/EasyTier/EasyLink/internal/api"
	"github.com/EasyTier/EasyLink/internal/engine/loopback"
	"github.com/EasyTier/EasyLink/internal/util/logger"
	"github.com/EasyTier/EasyLink/pkg/lib/log"
)

var cmdLogger = log.Logger("cmd")

// shutdownTimeout 收到退出信号后的拆除上限
const shutdownTimeout = 15 * time.Second

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖（这次运行想怎么跑）
//   JSON 配置文件：持久化配置（Launcher / Broadcaster / API / AutoStart）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile  = flag.String("config", "", "配置文件路径（JSON）")
	listenAddr  = flag.String("listen", "", "控制接口监听地址，覆盖配置文件")
	logLevel    = flag.String("log-level", "", "日志级别，如 info 或 core=debug,warn")
	fxDebug     = flag.Bool("fx-debug", false, "输出 Fx 依赖注入日志")
	noSTUN      = flag.Bool("no-stun", false, "关闭 STUN 公网地址探测")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(easylink.VersionInfo())
		return nil
	}

	logger.Setup(*logLevel)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	hub := api.NewHub(cfg.API.ClientBuffer, cfg.API.CORSOrigins)
	opts := []easylink.Option{
		easylink.WithConfig(cfg),
		easylink.WithEngineFactory(loopback.NewFactory(engineOptions(cfg, *noSTUN)...)),
		easylink.WithSink(hub),
		easylink.WithEventSink(hub),
	}
	if *fxDebug {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create fx logger: %w", err)
		}
		opts = append(opts, easylink.WithFxLogger(zl))
	}

	mgr, err := easylink.New(opts...)
	if err != nil {
		return fmt.Errorf("创建 Manager 失败: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmdLogger.Info("启动 easylink", "version", easylink.Version, "commit", easylink.GitCommit)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	var server *api.Server
	if cfg.API.ListenAddr != "" {
		server = api.New(cfg.API, mgr, hub)
		if err := server.Start(ctx); err != nil {
			_ = mgr.Stop(context.Background())
			return fmt.Errorf("启动控制接口失败: %w", err)
		}
		fmt.Printf("控制接口: http://%s\n", server.Addr())
	}

	fmt.Println("easylink 已启动，按 Ctrl+C 退出")
	<-ctx.Done()
	fmt.Println("\n正在关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			cmdLogger.Warn("关闭控制接口失败", "err", err)
		}
	}
	if err := mgr.Stop(shutdownCtx); err != nil {
		return err
	}
	return nil
}
