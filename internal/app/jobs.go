package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	interval := a.appConfig.Panel.RefreshInterval
	if interval > 0 {
		_, err := a.sched.AddFunc(fmt.Sprintf("@every %ds", interval), a.SchedRosterRefreshTask)
		if err != nil {
			zap.S().Errorf("init job error %s", err.Error())
		}
	}

	a.sched.Start()
}

// SchedRosterRefreshTask keeps the roster in sync with the gateway
func (a *Application) SchedRosterRefreshTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.appConfig.GatewayTimeout()*2)
	defer cancel()

	if _, err := a.panel.Refresh(ctx); err != nil {
		zap.L().Warn("scheduled roster refresh failed", zap.Error(err))
	}
}
