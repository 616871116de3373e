package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/evo-gateway/internal/app"
)

// NewSendCommand 下发一条模式命令并输出交互记录
func NewSendCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <command>",
		Short: "Send a mode command and wait for ACK/NACK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.loadForTool()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			gw, err := app.NewGateway(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer gw.Close()

			ex, err := gw.Runner.Send(cmd.Context(), args[0])
			if ex != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if e := enc.Encode(ex); e != nil {
					return e
				}
			}
			return err
		},
	}
	return cmd
}
