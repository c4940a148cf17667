package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sentio/internal/capture"
	"sentio/internal/classifier"
	"sentio/internal/domain"
	"sentio/internal/repository"
	"sentio/internal/service"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		dir          string
		modalityFlag string
		user         string
		interval     time.Duration
		ticks        int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay files from a directory through the capture loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			modality, ok := domain.ParseCaptureModality(modalityFlag)
			if !ok {
				return fmt.Errorf("unsupported modality %q (use face or voice)", modalityFlag)
			}
			if interval <= 0 {
				interval = ctx.cfg.FaceInterval
				if modality == domain.ModalityVoice {
					interval = ctx.cfg.VoiceInterval
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withEvents(runCtx, func(events repository.EventRepository) error {
				return runCapture(runCtx, cmd, ctx, events, dir, modality, user, interval, ticks)
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory with images (face) or audio clips (voice)")
	cmd.Flags().StringVar(&modalityFlag, "modality", "face", "Capture modality: face or voice")
	cmd.Flags().StringVar(&user, "user", "cli", "User id recorded on each event")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Sampling interval (clamped to 500ms..3s)")
	cmd.Flags().IntVar(&ticks, "ticks", 0, "Stop after this many classified samples (0 runs until interrupted)")
	return cmd
}

func runCapture(
	runCtx context.Context,
	cmd *cobra.Command,
	ctx *commandContext,
	events repository.EventRepository,
	dir string,
	modality domain.Modality,
	user string,
	interval time.Duration,
	ticks int,
) error {
	out := cmd.OutOrStdout()
	done := make(chan struct{})
	var (
		once  sync.Once
		count atomic.Int64
	)

	printer := service.ObserverFunc(func(ev domain.EmotionEvent) {
		fmt.Fprintf(out, "%s  %-5s  %s %-8s %6s  %s\n",
			ev.CreatedAt.Local().Format("15:04:05"),
			ev.Modality,
			ev.Interpretation.Emoji,
			ev.Emotion,
			service.FormatConfidence(ev.Confidence),
			ev.Interpretation.Message,
		)
		if ticks > 0 && count.Add(1) >= int64(ticks) {
			once.Do(func() { close(done) })
		}
	})

	publisher := service.NewPublisher(events, nil, ctx.logger, ctx.cfg.PersistTimeout, printer)
	client := classifier.NewClient(ctx.cfg.ClassifierBaseURL, ctx.cfg.ClassifierTimeout, ctx.logger)
	manager := capture.NewManager(capture.NewDirDevice(dir), client, publisher, map[domain.Modality]time.Duration{
		modality: interval,
	}, ctx.logger)

	st, err := manager.Start(runCtx, user, modality, 0)
	if err != nil {
		if st.Banner != "" {
			return errors.New(st.Banner)
		}
		return err
	}
	fmt.Fprintf(out, "capturing %s from %s every %s (ctrl-c to stop)\n",
		modality, dir, time.Duration(st.IntervalMS)*time.Millisecond)

	select {
	case <-runCtx.Done():
	case <-done:
	}

	final, _ := manager.Stop(user, modality)
	publisher.Wait()
	fmt.Fprintf(out, "%s (%d classified)\n", final.StatusText, count.Load())
	return nil
}

func newDashboardCommand(ctx *commandContext) *cobra.Command {
	var window int

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the dominant mood and distribution of the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if window <= 0 {
				window = ctx.cfg.DashboardWindow
			}
			return ctx.withEvents(cmd.Context(), func(events repository.EventRepository) error {
				snap, err := service.NewDashboardService(events, window).Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Dominant mood: %s %s (%d of %d events)\n",
					snap.DominantMood.Emoji, snap.DominantMood.Mood, snap.DominantMood.Count, snap.Total)

				emotions := make([]string, 0, len(snap.Distribution))
				for e := range snap.Distribution {
					emotions = append(emotions, e)
				}
				sort.Strings(emotions)
				for _, e := range emotions {
					fmt.Fprintf(out, "  %-8s %d\n", e, snap.Distribution[e])
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&window, "window", 0, "Number of most recent events to include")
	return cmd
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := service.NewJWTService(ctx.cfg.JWTSecret, 0).GenerateAccessToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id for the token subject")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
