package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	scanner "github.com/goliatone/go-scanner"
	"github.com/goliatone/go-scanner/activitymap"
	"github.com/goliatone/go-scanner/camera"
	"github.com/goliatone/go-scanner/config"
	"github.com/goliatone/go-scanner/fees"
	"github.com/goliatone/go-scanner/history"
	"github.com/goliatone/go-scanner/middleware/deviceguard"
	"github.com/goliatone/go-scanner/rental"
	"github.com/goliatone/go-scanner/speech"
	"github.com/goliatone/go-scanner/verifier"
)

type App struct {
	config   config.App
	logger   *glog.BaseLogger
	db       *persistence.Client
	history  *history.Store
	verifier *verifier.Client
	feeds    map[string]*camera.Feed
	registry *scanner.Registry
	srv      router.Server[*fiber.App]
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("scanner"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	path := os.Getenv("SCANNER_CONFIG")
	if path == "" {
		path = "config.yaml"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx, path)
	if err != nil {
		panic(err)
	}

	if cfg.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeSecureJSON(cfg))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
		feeds:  map[string]*camera.Feed{},
	}

	for _, step := range []func(context.Context, *App) error{
		WithHistory,
		WithVerifier,
		WithScanners,
		WithHTTPServer,
		WithReader,
	} {
		if err := step(ctx, app); err != nil {
			panic(err)
		}
	}

	if err := app.registry.MountAll(ctx); err != nil {
		panic(err)
	}

	go func() {
		if err := app.srv.Serve(cfg.Server.Address); err != nil {
			app.GetLogger("http").Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	app.GetLogger("app").Info("shutting down", "signal", sig.String())
	cancel()
	app.Shutdown()
}

func (a *App) Shutdown() {
	a.registry.UnmountAll()

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout())
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		a.GetLogger("http").Error("shutdown failed", "error", err)
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.GetLogger("history").Error("close failed", "error", err)
		}
	}
}

func WithHistory(ctx context.Context, app *App) error {
	hcfg := app.config.History
	if !hcfg.Enabled {
		return nil
	}

	logger := app.GetLogger("history")
	client, err := history.Open(ctx, hcfg.Store(), logger)
	if err != nil {
		return err
	}
	app.db = client

	store, err := history.NewStore(client.DB(), history.WithLogger(logger))
	if err != nil {
		return err
	}
	app.history = store

	policy := hcfg.Store().Retention()
	if policy.TTL > 0 || policy.RowCap > 0 {
		go pruneLoop(ctx, store, policy, hcfg.PruneInterval(), logger)
	}
	return nil
}

func pruneLoop(ctx context.Context, store *history.Store, policy history.RetentionPolicy, every time.Duration, logger glog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := store.Prune(ctx, policy); err != nil {
			logger.Warn("history prune failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func WithVerifier(ctx context.Context, app *App) error {
	vcfg := app.config.Verifier
	client, err := verifier.NewClient(verifier.Config{
		BaseURL: vcfg.BaseURL,
		Timeout: vcfg.Timeout(),
		Session: verifier.NewStaticSession(vcfg.StaffToken),
		Logger:  app.GetLogger("verifier"),
	})
	if err != nil {
		return err
	}
	app.verifier = client
	return nil
}

func WithScanners(ctx context.Context, app *App) error {
	cfg := app.config

	speaker := speech.New(cfg.Speech.Command, cfg.Speech.Args...)
	if cmd, ok := speaker.(*speech.Command); ok {
		cmd.Logger = app.GetLogger("speech")
	}

	common := func(name string) []scanner.Option {
		feed := camera.NewFeed(
			camera.WithBuffer(cfg.Camera.Buffer),
			camera.WithLogger(app.GetLogger("camera."+name)),
		)
		app.feeds[name] = feed

		opts := []scanner.Option{
			scanner.WithName(name),
			scanner.WithCamera(feed),
			scanner.WithSpeaker(speaker),
			scanner.WithSpeechTimeout(cfg.Speech.Timeout()),
			scanner.WithLoggerProvider(app.logger),
		}
		sinks := []scanner.ActivitySink{activitymap.NewLogSink(app.GetLogger("activity"))}
		if app.history != nil {
			sinks = append(sinks, app.history)
		}
		return append(opts, scanner.WithActivitySink(scanner.MultiActivitySink(sinks...)))
	}

	var scanners []*scanner.Scanner

	if cfg.Fees.Enabled {
		process := fees.NewProcessor(app.verifier, cfg.Fees.Copy, fees.WithLogger(app.GetLogger("fees")))
		s, err := scanner.New(cfg.Fees.Scanner, process, common(fees.ScannerName)...)
		if err != nil {
			return err
		}
		scanners = append(scanners, s)
	}

	if cfg.Rental.Enabled {
		loc, err := cfg.Rental.TimeLocation()
		if err != nil {
			return err
		}
		process := rental.NewProcessor(app.verifier, cfg.Rental.Copy,
			rental.WithLogger(app.GetLogger("rental")),
			rental.WithLocation(loc),
		)
		s, err := scanner.New(cfg.Rental.Scanner, process, common(rental.ScannerName)...)
		if err != nil {
			return err
		}
		scanners = append(scanners, s)
	}

	registry, err := scanner.NewRegistry(scanners...)
	if err != nil {
		return err
	}
	app.registry = registry
	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.config.Debug,
			StrictRouting:     false,
		}))
	})

	srv.Router().Use(requestLogger(app.GetLogger("router")))

	opts := []scanner.ControllerOption{
		scanner.WithControllerDebug(app.config.Debug),
		scanner.WithControllerLogger(app.GetLogger("controller")),
	}
	if app.history != nil {
		opts = append(opts, scanner.WithControllerHistory(app.history))
	}
	if device := app.config.Device; device.Enabled {
		guard := deviceguard.Config{
			JWKSetURLs: device.JWKSURLs,
			Audience:   device.Audience,
		}
		if device.Secret != "" {
			guard.SigningKey = deviceguard.SigningKey{JWTAlg: device.Algorithm, Key: []byte(device.Secret)}
		}
		opts = append(opts, scanner.WithControllerMiddleware(deviceguard.New(guard)))
	}
	scanner.RegisterScannerRoutes(srv.Router(), app.registry, opts...)

	app.srv = srv
	return nil
}

func requestLogger(logger glog.Logger) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			start := time.Now()
			err := next(ctx)
			logger.Debug("http request",
				"method", ctx.Method(),
				"path", ctx.Path(),
				"duration", time.Since(start),
				"error", err,
			)
			return err
		}
	}
}

// WithReader attaches stdin to the configured scanner's feed.
func WithReader(ctx context.Context, app *App) error {
	if app.config.Camera.Source != config.CameraSourceStdin {
		return nil
	}
	feed, ok := app.feeds[app.config.Camera.Target]
	if !ok {
		return nil
	}
	logger := app.GetLogger("reader")
	go func() {
		if err := camera.PumpLines(ctx, os.Stdin, feed, "stdin"); err != nil {
			logger.Error("reader stopped", "error", err)
		}
	}()
	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
