package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/nailosophy/internal/app"
	"github.com/ayusman/nailosophy/internal/capture"
	"github.com/ayusman/nailosophy/internal/config"
	"github.com/ayusman/nailosophy/internal/detector"
	"github.com/ayusman/nailosophy/internal/overlay"
	"github.com/ayusman/nailosophy/internal/render"
	"github.com/ayusman/nailosophy/internal/server"
	"github.com/ayusman/nailosophy/internal/session"
	"github.com/ayusman/nailosophy/internal/store"
	"github.com/ayusman/nailosophy/internal/tray"
)

// eventsKept bounds the status journal across restarts.
const eventsKept = 5000

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Fatalw("nailosophy exited", "error", err)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	logger.Infow("Nailosophy - AR nail preview", "addr", cfg.Addr, "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	if n, err := st.Events().Prune(eventsKept); err != nil {
		logger.Warnw("failed to prune status journal", "error", err)
	} else if n > 0 {
		logger.Debugw("pruned status journal", "removed", n)
	}

	params := loadCalibration(st, logger)

	compositor := render.NewCompositor(render.CompositorConfig{Skeleton: cfg.Skeleton}, cfg.Viewport)
	broadcaster := render.NewBroadcaster(logger.Named("overlay"))

	sinks := []session.StatusSink{app.NewJournal(st.Events(), logger)}
	var tr *tray.Tray
	if cfg.Tray {
		tr = tray.New()
		sinks = append(sinks, tr)
	}

	sess := session.New(session.Config{
		Opener: capture.DeviceOpener{
			FrontDevice: cfg.FrontDevice,
			BackDevice:  cfg.BackDevice,
		},
		Mapper:       overlay.NewMapper(params),
		Renderer:     render.Multi{compositor, broadcaster},
		Viewport:     cfg.Viewport,
		CameraWidth:  cfg.CameraWidth,
		CameraHeight: cfg.CameraHeight,
		FPS:          cfg.FPS,
		Sinks:        sinks,
		Logger:       logger.Named("session"),
	})

	var d detector.Detector
	if mp, err := detector.NewMediaPipeDetector(cfg.Detector); err == nil {
		d = mp
		logger.Info("Using MediaPipe hand detection")
	} else {
		logger.Warnw("MediaPipe not available", "error", err)
		sess.ReportStatus(session.StatusDetectorError, "MediaPipe Init Error: "+err.Error())
		d = detector.NewUnavailable(err)
	}

	application := app.New(app.Config{
		Session:  sess,
		Detector: d,
		FPS:      cfg.FPS,
		Logger:   logger.Named("pipeline"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logger.Warnw("camera unavailable at startup", "error", err)
	}

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Infow("Serving static files", "dir", staticDir)
	}

	httpServer := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(server.Config{
			StaticDir: staticDir,
			Session:   sess,
			Frames:    compositor,
			Overlay:   broadcaster,
			Store:     st,
			Logger:    logger.Named("http"),
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infow("Starting server", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if tr != nil {
		tr.OnFlip(func() {
			if _, err := sess.Flip(ctx); err != nil {
				logger.Warnw("flip failed", "error", err)
			}
		})
		tr.OnToggle(application.SetEnabled)
		tr.OnPreview(func() { openBrowser(previewURL(cfg.Addr), logger) })
		tr.OnQuit(cancel)

		go func() {
			if err := <-serveErr; err != nil {
				logger.Errorw("server failed", "error", err)
				cancel()
			}
		}()
		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		// systray must own the main goroutine on macOS.
		tr.Run()
	} else {
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				cancel()
				application.Stop()
				return fmt.Errorf("server failed: %w", err)
			}
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("server shutdown", "error", err)
	}

	return application.Stop()
}

// loadCalibration reads the saved mapper parameters, storing the defaults on
// first run.
func loadCalibration(st *store.Store, logger *zap.SugaredLogger) overlay.Params {
	params, err := st.Settings().Calibration()
	switch {
	case err == nil:
		logger.Infow("loaded calibration", "vertical_offset", params.VerticalOffset, "scale_multiplier", params.ScaleMultiplier, "depth", params.Depth)
	case errors.Is(err, store.ErrNotFound):
		if err := st.Settings().SaveCalibration(params); err != nil {
			logger.Warnw("failed to save default calibration", "error", err)
		}
	default:
		logger.Warnw("ignoring stored calibration", "error", err)
	}
	return params
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.nailosophy/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".nailosophy", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func previewURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string, logger *zap.SugaredLogger) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger.Warnw("failed to open browser", "url", url, "error", err)
	}
}
