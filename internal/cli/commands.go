package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// NewCommandsCommand 列出型号支持的命令，无需打开设备
func NewCommandsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List mode commands of the configured model",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := opts.model
			if name == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				name = cfg.Sensor.Model
			}
			model, err := evo.ParseModel(name)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tOPCODE\tDESCRIPTION")
			for _, c := range evo.Commands(model) {
				fmt.Fprintf(w, "%s\t% X\t%s\n", c.Name(), c.Opcode(), c.Description())
			}
			return w.Flush()
		},
	}
	return cmd
}
