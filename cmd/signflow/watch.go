package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signflow/signflow/internal/app"
	"github.com/signflow/signflow/internal/capture"
	"github.com/signflow/signflow/internal/gesture"
	"github.com/signflow/signflow/internal/metrics"
	"github.com/signflow/signflow/internal/server"
	"github.com/signflow/signflow/internal/session"
	"github.com/signflow/signflow/internal/store"
)

var watchOpts struct {
	device      int
	fps         int
	language    string
	gloss       string
	motion      float64
	motionHold  time.Duration
	previewAddr string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recognize signs from a local camera and print the words",
	Long: `Watch runs one recognition session against a local camera instead of a
websocket client. Every confirmed word is printed as "<gloss>\t<confidence>".
With --gloss the session runs in TRAINING mode and records whether each word
matched the gloss.`,
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.IntVar(&watchOpts.device, "device", 0, "camera device index")
	f.IntVar(&watchOpts.fps, "fps", capture.DefaultFPS, "capture frame rate")
	f.StringVar(&watchOpts.language, "language", "", "language to recognize (default: --default-language)")
	f.StringVar(&watchOpts.gloss, "gloss", "", "practice this gloss in TRAINING mode")
	f.Float64Var(&watchOpts.motion, "motion", 0, "only recognize while this percentage of pixels changes (0 disables)")
	f.DurationVar(&watchOpts.motionHold, "motion-hold", capture.DefaultMotionHold, "keep recognizing this long after motion stops")
	f.StringVar(&watchOpts.previewAddr, "preview", "", "serve an MJPEG preview at http://<addr>/api/stream (disabled when empty)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	lang := watchOpts.language
	if lang == "" {
		lang = cfg.DefaultLanguage
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	emit := buildEmitter(ctx, cfg, st, logger)
	defer emit.Close()

	ctrl := session.New(sessionOptions(cfg, emit, logger))
	defer ctrl.Close()

	if err := st.Sessions().Create(&store.Session{
		ID:         ctrl.ID(),
		Language:   lang,
		RemoteAddr: fmt.Sprintf("camera:%d", watchOpts.device),
		StartedAt:  ctrl.Session().StartedAt,
	}); err != nil {
		logger.Warn("failed to record session", "error", err)
	}
	defer func() {
		if err := st.Sessions().End(ctrl.ID(), time.Now().UTC()); err != nil {
			logger.Warn("failed to record session end", "error", err)
		}
	}()

	if err := ctrl.SetLanguage(ctx, lang); err != nil {
		return err
	}
	if watchOpts.gloss != "" {
		if _, err := ctrl.SetMode(string(session.Training)); err != nil {
			return err
		}
		if err := ctrl.SetGloss(watchOpts.gloss); err != nil {
			return err
		}
	}

	var gate *capture.MotionGate
	if watchOpts.motion > 0 {
		gate = capture.NewMotionGate(watchOpts.motion, watchOpts.motionHold)
		defer gate.Close()
	}

	preview := &capture.Preview{}
	out := cmd.OutOrStdout()
	a := app.New(app.Config{
		Camera: capture.NewCamera(capture.CameraConfig{
			Device: watchOpts.device,
			FPS:    watchOpts.fps,
		}),
		Controller: ctrl,
		Gate:       gate,
		Preview:    preview,
		OnWord: func(g gesture.Gesture) {
			fmt.Fprintf(out, "%s\t%.2f\n", g.Gloss, g.Confidence)
		},
		Logger: logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return a.Run(gctx)
	})

	if addr := watchOpts.previewAddr; addr != "" {
		httpSrv := &http.Server{
			Addr: addr,
			Handler: server.New(server.Config{
				Preview:  preview,
				Registry: metrics.NewRegistry(),
				Logger:   logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("preview available", "url", "http://"+strings.TrimPrefix(addr, "0.0.0.0")+"/api/stream")
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	stats := a.Stats()
	logger.Info("watch finished", "frames", stats.Frames, "words", stats.Words)
	return err
}
