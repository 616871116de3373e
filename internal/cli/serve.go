package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/evo-gateway/internal/app/bootstrap"
	"github.com/taoyao-code/evo-gateway/internal/logging"
)

// NewServeCommand 启动网关：采集循环、下游发布与 HTTP 控制面
func NewServeCommand(opts *globalOptions) *cobra.Command {
	var noStream bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway with HTTP control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if noStream {
				cfg.Stream.AutoStart = false
			}
			logger, err := logging.InitLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			zap.ReplaceGlobals(logger)
			return bootstrap.Run(cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Do not start streaming until requested over the API")
	return cmd
}
