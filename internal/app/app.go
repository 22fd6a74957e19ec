package app

import (
	"os"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"github.com/wuzpanel/wuzpanel/config"
	"github.com/wuzpanel/wuzpanel/internal/gateway"
	"github.com/wuzpanel/wuzpanel/internal/panel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Application struct {
	appConfig *config.AppConfig
	gw        gateway.Client
	panel     *panel.Panel
	sched     *cron.Cron
	bus       EventBus.Bus
}

// Ensure Application implements all interfaces
var (
	_ ConfigProvider    = (*Application)(nil)
	_ PanelProvider     = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ BusProvider       = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) Gateway() gateway.Client {
	return a.gw
}

func (a *Application) Panel() *panel.Panel {
	return a.panel
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

// OverridePanel replaces the application's panel (used in tests).
func (a *Application) OverridePanel(p *panel.Panel) {
	a.panel = p
}

func (a *Application) Init(cfg *config.AppConfig) error {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			return err
		}
	}

	zap.ReplaceGlobals(logger)

	a.bus = EventBus.New()
	a.gw = gateway.NewHTTP(gateway.Config{
		BaseURL:    cfg.Gateway.BaseURL,
		AdminToken: cfg.Gateway.AdminToken,
		Timeout:    cfg.GatewayTimeout(),
	})
	a.panel, err = panel.New(a.gw, panel.Options{
		SettleWait:    cfg.SettleWait(),
		StatusWorkers: cfg.Panel.StatusWorkers,
		Bus:           a.bus,
	})
	if err != nil {
		return err
	}
	zap.S().Infof("Gateway client ready, base url: %s", cfg.Gateway.BaseURL)

	a.subscribeRosterEvents()
	a.initJob()
	return nil
}

func (a *Application) subscribeRosterEvents() {
	_ = a.bus.Subscribe(panel.TopicRosterReplaced, func(count int) {
		zap.L().Debug("roster replaced", zap.Int("instances", count))
	})
	_ = a.bus.Subscribe(panel.TopicInstanceRemoved, func(id int64) {
		zap.L().Info("instance removed from roster", zap.Int64("id", id))
	})
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}

	if a.panel != nil {
		a.panel.Release()
	}

	_ = zap.L().Sync()
}
