package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/evo-gateway/internal/app"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// jsonSink 把测量逐行写成 JSON，写满 limit 条后调用 done
type jsonSink struct {
	mu    sync.Mutex
	enc   *json.Encoder
	n     int
	limit int
	done  func()
}

func newJSONSink(w io.Writer, limit int, done func()) *jsonSink {
	return &jsonSink{enc: json.NewEncoder(w), limit: limit, done: done}
}

func (s *jsonSink) Name() string { return "stdout" }

func (s *jsonSink) Publish(_ context.Context, m *evo.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && s.n >= s.limit {
		return nil
	}
	if err := s.enc.Encode(m); err != nil {
		return err
	}
	s.n++
	if s.limit > 0 && s.n == s.limit {
		s.done()
	}
	return nil
}

// NewStreamCommand 在前台采集并输出 JSON 测量
func NewStreamCommand(opts *globalOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream measurements to stdout as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.loadForTool()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			gw, err := app.NewGateway(ctx, cfg, log, newJSONSink(cmd.OutOrStdout(), count, cancel))
			if err != nil {
				return err
			}
			defer gw.Close()
			return gw.Runner.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Stop after N measurements (0 = until interrupted)")
	return cmd
}
