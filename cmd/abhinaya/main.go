package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/abhinaya/internal/app"
	"github.com/ayusman/abhinaya/internal/capture"
	"github.com/ayusman/abhinaya/internal/classify"
	"github.com/ayusman/abhinaya/internal/config"
	"github.com/ayusman/abhinaya/internal/detector"
	"github.com/ayusman/abhinaya/internal/layout"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/pointer"
	"github.com/ayusman/abhinaya/internal/pointer/desktop"
	"github.com/ayusman/abhinaya/internal/server"
	"github.com/ayusman/abhinaya/internal/store"
	"github.com/ayusman/abhinaya/internal/tray"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides ABHINAYA_ADDR)")
	camera := flag.Int("camera", 0, "camera device ID (overrides ABHINAYA_CAMERA)")
	withTray := flag.Bool("tray", false, "show the system tray menu (overrides ABHINAYA_TRAY)")
	flag.Parse()

	cfg := config.Load()
	log.Init(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Error("creating data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		log.Error("opening store", "path", cfg.DBPath(), "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if settings, err := st.Settings().All(); err != nil {
		log.Warn("loading settings", "error", err)
	} else {
		cfg.ApplySettings(settings)
	}

	// Flags win over both the environment and stored settings.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "camera":
			cfg.CameraID = *camera
		case "tray":
			cfg.Tray = *withTray
		}
	})

	tree := layout.NewTree()
	a := app.New(appConfig(cfg, st, tree))

	webDir := findWebDir(cfg.DataDir)
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}
	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		App:       a,
		Layout:    tree,
	})
	httpServer := srv.HTTPServer(cfg.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting server", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	if cfg.Tray {
		runTray(ctx, stop, a, cfg.Addr)
	} else {
		<-ctx.Done()
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	if err := a.Close(); err != nil {
		log.Warn("closing app", "error", err)
	}
}

// appConfig builds the fusion app from the loaded configuration.
func appConfig(cfg *config.Config, st *store.Store, tree *layout.Tree) app.Config {
	classifier := classify.NewSocketClient(cfg.ClassifierSocket)

	width, height := cfg.ScreenWidth, cfg.ScreenHeight
	var target pointer.HitTester = tree
	if cfg.Pointer == config.PointerDesktop {
		target = desktop.New()
		if w, h := desktop.ScreenSize(); w > 0 && h > 0 {
			width, height = w, h
		}
	}
	log.Info("pointer target", "kind", cfg.Pointer, "width", width, "height", height)

	ac := app.Config{
		Camera:          capture.NewCamera(cfg.CameraID),
		Accessory:       classifier,
		Expression:      classifier,
		Target:          target,
		Store:           st,
		CameraID:        cfg.CameraID,
		PoseEvery:       cfg.PoseEvery,
		ExclusiveMatch:  cfg.ExclusiveMatch,
		MotionThreshold: cfg.MotionThreshold,
		Classify: classify.Options{
			AccessoryInterval:  cfg.AccessoryInterval,
			ExpressionInterval: cfg.ExpressionInterval,
			Workers:            cfg.ClassifierWorkers,
		},
		Pointer: pointer.DefaultOptions(float64(width), float64(height)),
	}
	// A nil detector makes app.New load MediaPipe and block if it cannot.
	if cfg.Detector == config.DetectorMock {
		ac.Detector = detector.NewMockDetector()
	}
	return ac
}

// runTray blocks in the tray loop until quit or ctx ends.
func runTray(ctx context.Context, stop context.CancelFunc, a *app.App, addr string) {
	t := tray.New()
	t.OnToggle(a.SetEnabled)
	t.OnOpen(func() { openBrowser(kioskURL(addr)) })
	t.OnQuit(stop)

	a.Subscribe(func(snap app.Snapshot) {
		t.SetStatus(snap.Status.Text)
		t.SetGesture(snap.Gesture)
	})

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

func kioskURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
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
		log.Warn("opening browser", "url", url, "error", err)
	}
}

// findWebDir returns the first existing web directory among "web",
// "../web", "../../web" and <dataDir>/web, or "".
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
