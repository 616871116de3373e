// Package cli 命令行入口：serve 启动网关，其余子命令用于现场调试
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/evo-gateway/internal/config"
	"github.com/taoyao-code/evo-gateway/internal/logging"
)

const (
	ConfigOptionName = "config"
	PortOptionName   = "port"
	ModelOptionName  = "model"
)

type globalOptions struct {
	configPath string
	port       string
	model      string
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "evo-gateway",
		Short:         "Terabee Evo sensor gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, ConfigOptionName, "", "Config file path (default $EVO_CONFIG or configs/example.yaml)")
	cmd.PersistentFlags().StringVar(&opts.port, PortOptionName, "", "Serial port, or sim://<script.yaml> for the simulator")
	cmd.PersistentFlags().StringVar(&opts.model, ModelOptionName, "", "Sensor model: evo64px | evomini | evothermal | multiflex")

	cmd.AddCommand(
		NewServeCommand(opts),
		NewStreamCommand(opts),
		NewSendCommand(opts),
		NewCommandsCommand(opts),
		NewPortsCommand(),
	)
	return cmd
}

// load 读取配置并应用命令行覆盖
func (o *globalOptions) load() (*cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.port != "" {
		cfg.Serial.Port = o.port
	}
	if o.model != "" {
		cfg.Sensor.Model = o.model
	}
	return cfg, cfg.Validate()
}

// loadForTool 调试子命令：日志写 stderr，不写滚动文件
func (o *globalOptions) loadForTool() (*cfgpkg.Config, *zap.Logger, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	cfg.Logging.Console = "stderr"
	cfg.Logging.File.Filename = ""
	log, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
