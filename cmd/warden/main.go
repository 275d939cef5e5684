package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/admin"
	"github.com/aquamarinepk/warden/auth"
	"github.com/aquamarinepk/warden/catalog"
	"github.com/aquamarinepk/warden/events"
	"github.com/aquamarinepk/warden/middleware"
	"github.com/aquamarinepk/warden/notfound"
	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/rulestore"
	"github.com/aquamarinepk/warden/subject"
	"github.com/aquamarinepk/warden/web"
)

const (
	namespace  = "WARDEN"
	appName    = "warden"
	appVersion = "v0.1.0"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		os.Exit(hashPassword(os.Args[2:]))
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s (%s) stopped with error: %v\n", appName, appVersion, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) (err error) {
	cfg, err := warden.LoadConfig(namespace, args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var logFile warden.LogFileConfig
	if err := cfg.Unmarshal("log.file", &logFile); err != nil {
		return err
	}
	log := warden.NewFileLogger(cfg.GetStringOrDef("log.level", "info"), logFile)
	log.Info("starting", "app", appName, "version", appVersion)

	storeCfg, err := rulestore.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	backend, err := rulestore.Open(ctx, storeCfg, log)
	if err != nil {
		return fmt.Errorf("open rule store: %w", err)
	}
	appOwnsBackend := false
	defer func() { stopUnlessOwned(ctx, backend, appOwnsBackend, &err) }()
	var seeds struct {
		Rules []rulestore.SeedRule `koanf:"rules"`
	}
	if err := cfg.Unmarshal("notfound", &seeds); err != nil {
		return err
	}
	if err := backend.Seed(ctx, seeds.Rules, appName); err != nil {
		return fmt.Errorf("seed rules: %w", err)
	}

	templates := web.NewTemplates(log)

	var redirectCfg redirect.Config
	if err := cfg.Unmarshal("redirect", &redirectCfg); err != nil {
		return err
	}
	executor := redirect.NewExecutorFromConfig(redirectCfg, redirect.NewCallbacks(),
		redirect.WithMessageRenderer(web.NewMessagePage(templates)))

	bus := events.NewBus(log)
	if err := bus.Subscribe(ctx, notfound.EventRedirected, notfound.AuditLog(log)); err != nil {
		return err
	}
	if err := bus.Subscribe(ctx, notfound.EventRulesChanged, notfound.AuditRuleChanges(log)); err != nil {
		return err
	}

	deps := &warden.Deps{Logger: log, Config: cfg, PubSub: bus}
	resolver := subject.NewHeaderResolver(
		cfg.GetStringOrDef("subject.header.user", subject.DefaultUserHeader),
		cfg.GetStringOrDef("subject.header.roles", subject.DefaultRolesHeader),
	)
	svcOpts := []notfound.Option{notfound.WithResolver(resolver)}
	if cache := backend.Cache(); cache != nil {
		svcOpts = append(svcOpts, notfound.WithCache(cache))
	}
	svc, err := notfound.New(backend.Store, executor, deps, svcOpts...)
	if err != nil {
		return err
	}
	backend.OnReload(func() {
		svc.PublishRulesChanged(context.Background(), notfound.ChangeReloaded, "")
	})

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:          log,
		TimeoutDuration: cfg.GetDurationOrDef("http.timeout", 30*time.Second),
		CompressLevel:   cfg.GetIntOrDef("http.compress_level", 5),
	})
	stack = append(stack, subject.Middleware(resolver), svc.Intercept)

	opts := []warden.Option{
		warden.WithConfig(cfg),
		warden.WithLogger(log),
		warden.WithPubSub(bus),
		warden.WithHTTPMiddleware(stack...),
		warden.WithLifecycle(backend, templates),
		warden.WithHealthChecks(appName),
		warden.WithHealthReporters(backend),
	}
	if cache := backend.Cache(); cache != nil {
		sweep := func(ctx context.Context) error { return cache.Sweep(ctx, storeCfg.Cache.TTL) }
		opts = append(opts, warden.WithRunner(warden.NewBackgroundRunner("rule-cache-sweep", sweep, log)))
	}
	if cfg.GetBoolOrFalse("debug.routes") {
		opts = append(opts, warden.WithDebugRoutes())
	}

	var modules []warden.HTTPModuleFactory
	adminCfg, err := admin.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	if adminCfg.Enabled {
		panels, services := catalog.NewPanels(), catalog.NewServices()
		adminOpts := []admin.Option{admin.WithUI(templates, web.NewStatic(log))}
		creds, err := auth.CredentialsFromConfig(cfg)
		switch {
		case err == nil:
			adminOpts = append(adminOpts, admin.WithCredentials(creds))
		case !errors.Is(err, auth.ErrNoCredentials):
			return fmt.Errorf("admin credentials: %w", err)
		}
		opts = append(opts, warden.WithAdminSurface(panels, services))
		modules = append(modules, admin.Factory(panels, services, adminCfg, adminOpts...))
	}

	opts = append(opts,
		warden.WithFeatures(svc),
		warden.WithHTTPServer("http.port", modules...),
	)

	app := warden.NewApp(opts...)
	appOwnsBackend = true
	return app.Run(ctx)
}

type stopper interface {
	Stop(context.Context) error
}

// stopUnlessOwned releases s when setup failed before the app took it over.
func stopUnlessOwned(ctx context.Context, s stopper, owned bool, errp *error) {
	if *errp == nil || owned {
		return
	}
	*errp = errors.Join(*errp, s.Stop(context.WithoutCancel(ctx)))
}

// hashPassword prints the admin.password settings for a password given as
// the only argument.
func hashPassword(args []string) int {
	if len(args) != 1 || args[0] == "" {
		_, _ = fmt.Fprintf(os.Stderr, "usage: %s hash-password <password>\n", appName)
		return 2
	}
	hash, salt := auth.EncodePassword(args[0])
	_, _ = fmt.Fprintf(os.Stdout, "admin:\n  password:\n    hash: %s\n    salt: %s\n", hash, salt)
	return 0
}
