package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ai-interviewer/internal/config"
	"ai-interviewer/internal/logger"
)

const app = "ai-interviewer"

var (
	version = "1.0.0" //nolint:gochecknoglobals

	// 全局参数
	configPath string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "AI interviewer: adaptive interview sessions and resume-to-job matching",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

// Execute 执行根命令
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	addConfigFlag(rootCmd.PersistentFlags())
}

func addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&configPath, "config", "c", "", "Path to config file (default: search config.yaml in common locations)")
}

// loadConfig 加载配置并初始化日志，返回的 closer 需要在退出时关闭
func loadConfig() (*config.Config, io.Closer, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	closer, err := logger.Init(logger.Config(cfg.Logger))
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	logger.BridgeHertz()
	hlog.Infof("%s %s 配置加载成功", app, version)
	return cfg, closer, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
