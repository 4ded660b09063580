package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"propctl/api"
	"propctl/device"
	"propctl/limiter"
	"propctl/render"
)

func newUploadCmd(a *app) *cobra.Command {
	var statusListen string
	var quiet bool
	cmd := &cobra.Command{
		Use:   "upload FILE.bin",
		Short: "Upload an image to the device",
		Long: `Upload sends FILE.bin over the data channel. The device accepts
only names ending in .bin that are at most 12 bytes long.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if statusListen == "" {
				statusListen = a.cfg.StatusListen
			}
			if statusListen != "" {
				srv := api.NewServer(a.cfg, a.mon, statusListen, a.log)
				if err := srv.Start(); err != nil {
					return fmt.Errorf("status server: %w", err)
				}
				defer func() {
					if err := srv.Stop(); err != nil {
						a.log.Warn("API: shutdown", zap.Error(err))
					}
				}()
			}

			lim := limiter.NewSharedLimiter(int64(a.cfg.Device.BandwidthLimit), nil)
			a.mon.RegisterLimiter(lim)

			name, err := device.ValidateFilename(args[0])
			if err != nil {
				return err
			}
			opts := []device.Option{
				device.WithLogger(a.log),
				device.WithReporter(a.mon),
				device.WithLimiter(lim),
			}
			var bar *render.Progress
			if !quiet {
				bar = render.NewProgress(cmd.OutOrStdout(), name)
				opts = append(opts, device.WithProgress(bar.Update))
			}

			s := device.NewSession(a.cfg.Device, opts...)
			err = s.UploadFile(cmd.Context(), args[0])
			if bar != nil {
				bar.Done(err)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&statusListen, "status-listen", "", "serve upload status as JSON on this address, e.g. 127.0.0.1:8080")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress bar")
	return cmd
}
