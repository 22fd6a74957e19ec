package app

import (
	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"github.com/wuzpanel/wuzpanel/config"
	"github.com/wuzpanel/wuzpanel/internal/gateway"
	"github.com/wuzpanel/wuzpanel/internal/panel"
)

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// GatewayProvider provides the messaging gateway client
type GatewayProvider interface {
	Gateway() gateway.Client
}

// PanelProvider provides the instance panel core
type PanelProvider interface {
	Panel() *panel.Panel
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// BusProvider provides the internal event bus
type BusProvider interface {
	Bus() EventBus.Bus
}

// AppContext combines all provider interfaces for full application context
// Handlers should depend on specific providers or this combined interface
type AppContext interface {
	ConfigProvider
	GatewayProvider
	PanelProvider
	SchedulerProvider
	BusProvider
}
