// Command mediacli is a small demo/test harness over mediacore,
// exercising open, compose, and snapshot the way spec §6's test
// harness sliders (position, frame-count, cache-factor, per-track
// volume/limiter) are meant to be driven, following the teacher's
// cmd/ie32to64 sibling-package convention for a standalone binary
// alongside the root module.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/intuitionamiga/mediacore"
	_ "github.com/intuitionamiga/mediacore/backend"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "mediacli",
		Short: "Exercise the mediacore timeline engine from the command line",
	}
	cmd.PersistentFlags().String("config", "", "path to an mediacore engine config file")
	_ = v.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))

	cmd.AddCommand(newProbeCommand(v), newComposeCommand(v), newSnapshotCommand(v))
	return cmd
}

func loadConfig(v *viper.Viper) mediacore.EngineConfig {
	cfg, err := mediacore.LoadEngineConfig(v.GetString("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: using defaults (%v)\n", err)
		return mediacore.DefaultEngineConfig()
	}
	return cfg
}

func newEnv(v *viper.Viper) (mediacore.EngineConfig, mediacore.Logger, *mediacore.Metrics) {
	cfg := loadConfig(v)
	logger := mediacore.NewDefaultLogger()
	metrics := mediacore.NewMetrics(prometheus.NewRegistry())
	return cfg, logger, metrics
}

// newProbeCommand opens N input files concurrently (each via its own
// Codec.OpenFormat) and prints their MediaInfo, using errgroup so one
// bad file doesn't block reporting on the rest.
func newProbeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe [files...]",
		Short: "Open one or more media files and print their stream info",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			installSignalHandler(cancel)

			results := make([][]mediacore.MediaInfo, len(args))
			errs := make([]error, len(args))
			g, gctx := errgroup.WithContext(ctx)
			for i, path := range args {
				i, path := i, path
				g.Go(func() error {
					codec, err := mediacore.NewCodec()
					if err != nil {
						errs[i] = fmt.Errorf("%s: %w", path, err)
						return nil
					}
					defer codec.Close()
					infos, err := codec.OpenFormat(gctx, path)
					if err != nil {
						errs[i] = fmt.Errorf("%s: %w", path, err)
						return nil
					}
					results[i] = infos
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			var firstErr error
			for i, path := range args {
				fmt.Printf("== %s ==\n", path)
				if errs[i] != nil {
					fmt.Printf("  error: %v\n", errs[i])
					if firstErr == nil {
						firstErr = errs[i]
					}
					continue
				}
				for _, info := range results[i] {
					fmt.Printf("  %s duration=%.2fs\n", info.Kind, info.DurationS)
				}
			}
			return firstErr
		},
	}
	return cmd
}

// newComposeCommand builds a one-clip, one-track timeline from a single
// input, runs the Composer starting at --position, and prints the
// timestamp and size of each frame it reads, up to --frames frames,
// exercising Track/Clip/Composer end to end.
func newComposeCommand(v *viper.Viper) *cobra.Command {
	var positionMS int64
	var frameCount int
	var width, height int

	cmd := &cobra.Command{
		Use:   "compose [file]",
		Short: "Run the video composer over a single clip and report frame timestamps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			installSignalHandler(cancel)

			cfg, logger, metrics := newEnv(v)
			runID := uuid.New().String()
			logger.Info("starting compose run", "run_id", runID, "file", args[0])

			codec, err := mediacore.NewCodec()
			if err != nil {
				return err
			}
			if _, err := codec.OpenFormat(ctx, args[0]); err != nil {
				return err
			}

			reader := mediacore.NewVideoSourceReader(codec, cfg, logger, metrics)
			if err := reader.Open(ctx, args[0]); err != nil {
				return err
			}
			if err := reader.Configure(width, height, mediacore.PixFmtRGBA, mediacore.InterpBilinear); err != nil {
				return err
			}
			if err := reader.Start(false); err != nil {
				return err
			}
			defer reader.Close()

			clip, err := mediacore.NewVideoClip(1, reader, 0, 0, 0)
			if err != nil {
				return err
			}

			geom := mediacore.OutputGeometry{Width: width, Height: height, FrameRate: mediacore.Ratio{Num: 25, Den: 1}}
			track := mediacore.NewTrack(1, mediacore.ClipVideo, geom)
			if err := track.AddNewClip(clip); err != nil {
				return err
			}

			composer := mediacore.NewComposer(cfg, logger, metrics)
			if err := composer.Configure(geom); err != nil {
				return err
			}
			composer.AddTrack(track, mediacore.UnattachedID)
			composer.Start()
			defer composer.Stop()

			composer.SeekTo(positionMS, false)
			for i := 0; i < frameCount; i++ {
				img, _, ok := composer.ReadVideoFrame(positionMS, false, false)
				if !ok {
					break
				}
				fmt.Printf("frame %d: ts=%dms %dx%d\n", i, img.TimeStampMS, img.Width, img.Height)
				positionMS += int64(geom.FrameRate.PositionMS(1))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&positionMS, "position", 0, "starting timeline position in ms")
	cmd.Flags().IntVar(&frameCount, "frames", 10, "number of frames to read")
	cmd.Flags().IntVar(&width, "width", 1280, "output frame width")
	cmd.Flags().IntVar(&height, "height", 720, "output frame height")
	return cmd
}

// newSnapshotCommand opens a file's SnapshotGenerator, attaches one
// Viewer, and polls it five times, printing how many of the view
// window's slots are filled. --cache-factor sets how far beyond the view
// the generator prefetches; it does not change the slot count.
func newSnapshotCommand(v *viper.Viper) *cobra.Command {
	var windowS float64
	var frameCount int
	var cacheFactor float64

	cmd := &cobra.Command{
		Use:   "snapshot [file]",
		Short: "Print sparse thumbnail slot occupancy for a viewer window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			installSignalHandler(cancel)

			cfg, logger, metrics := newEnv(v)
			cfg.SnapshotCacheFactor = cacheFactor

			codec, err := mediacore.NewCodec()
			if err != nil {
				return err
			}
			gen, err := mediacore.NewSnapshotGenerator(ctx, codec, args[0], windowS, frameCount, cfg, logger, metrics)
			if err != nil {
				return err
			}
			gen.Start()
			defer gen.Stop()

			viewer := gen.NewViewer(windowS, frameCount)
			for tick := 0; tick < 5; tick++ {
				time.Sleep(200 * time.Millisecond)
				snaps := viewer.GetSnapshots(0)
				filled := 0
				for _, s := range snaps {
					if !s.Empty {
						filled++
					}
				}
				fmt.Printf("tick %d: %d/%d slots filled\n", tick, filled, len(snaps))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&windowS, "window", 10, "viewer window size in seconds")
	cmd.Flags().IntVar(&frameCount, "frames", 20, "number of slots across the window")
	cmd.Flags().Float64Var(&cacheFactor, "cache-factor", 10, "cache_idx extent as a multiple of frame_count")
	return cmd
}

func installSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
}
