package main

import (
	"flag"
	"os"

	"github.com/EasyTier/EasyLink/config"
	"github.com/EasyTier/EasyLink/internal/engine/loopback"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// EnvListenAddr 控制接口监听地址环境变量
const EnvListenAddr = "EASYLINK_LISTEN"

// loadConfig 加载配置
//
// 优先级（从高到低）：命令行参数 > 环境变量 > 配置文件 > 默认值。
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadFile(*configFile); err != nil {
			return nil, err
		}
	}

	if v, ok := os.LookupEnv(EnvListenAddr); ok {
		cfg.API.ListenAddr = v
	}
	if isFlagSet("listen") {
		cfg.API.ListenAddr = *listenAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFlagSet 判断命令行是否显式设置了参数
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// engineOptions 由守护进程配置生成 loopback 引擎选项
func engineOptions(cfg *config.Config, disableSTUN bool) []loopback.Option {
	opts := []loopback.Option{
		loopback.WithEventBuffer(cfg.Launcher.EventBuffer),
	}
	if disableSTUN {
		opts = append(opts, loopback.WithoutSTUN())
	}
	return opts
}
