package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/strongdm/crashdispatch/internal/bootstrap"
	"github.com/strongdm/crashdispatch/internal/config"
	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

var (
	sendMessage string
	sendTags    []string
	sendData    map[string]string
	sendRepeat  int
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Dispatch a synthetic failure through the configured clients",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendMessage, "message", "synthetic failure from crashdispatch", "failure message")
	sendCmd.Flags().StringSliceVar(&sendTags, "tag", nil, "tag to attach (repeatable)")
	sendCmd.Flags().StringToStringVar(&sendData, "data", nil, "custom data as key=value (repeatable)")
	sendCmd.Flags().IntVar(&sendRepeat, "repeat", 1, "number of dispatch calls")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 15*time.Second, "time allowed for queued sends to finish")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}
	setupLogging(cfg.Logging.Level)

	app, err := bootstrap.Build(cfg, slog.Default(), nil)
	if err != nil {
		slog.Error("Failed to build dispatcher", "error", err)
		return err
	}

	ctx := dispatch.NewWorker(cmd.Context())
	tags := dispatch.NewTagSet(sendTags...)

	var sendErrs []error
	for i := 0; i < sendRepeat; i++ {
		failure := errors.New(sendMessage)
		if err := app.Dispatcher.SendData(ctx, failure, tags, sendData); err != nil {
			sendErrs = append(sendErrs, fmt.Errorf("dispatch %d: %w", i, err))
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		sendErrs = append(sendErrs, err)
	}

	if app.Metrics != nil {
		printMetrics(cmd, app.Metrics)
	}

	if err := errors.Join(sendErrs...); err != nil {
		slog.Error("Some reports were not dispatched", "error", err)
		return err
	}
	slog.Info("Reports dispatched", "count", sendRepeat)
	return nil
}

// printMetrics writes every counter and gauge sample to stdout.
func printMetrics(cmd *cobra.Command, m *dispatch.Metrics) {
	families, err := m.Registry().Gather()
	if err != nil {
		slog.Warn("Failed to gather metrics", "error", err)
		return
	}
	out := cmd.OutOrStdout()
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := ""
			for _, pair := range metric.GetLabel() {
				labels += fmt.Sprintf("%s=%q ", pair.GetName(), pair.GetValue())
			}
			switch {
			case metric.GetCounter() != nil:
				fmt.Fprintf(out, "%s {%s} %v\n", family.GetName(), labels, metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				fmt.Fprintf(out, "%s {%s} %v\n", family.GetName(), labels, metric.GetGauge().GetValue())
			}
		}
	}
}
