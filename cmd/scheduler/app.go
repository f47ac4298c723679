package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/cache"
	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/config"
	"github.com/warp/shift-scheduler/refresh"
	"github.com/warp/shift-scheduler/scheduler"
	"github.com/warp/shift-scheduler/store/sqlite"
	"github.com/warp/shift-scheduler/tadabase"
)

// app holds the wired components shared by the commands.
type app struct {
	store *sqlite.Store
	cache *cache.Cache
	svc   *scheduler.Service
	coord *refresh.Coordinator
	log   *zap.Logger
}

// newApp opens the local store and wires the vendor adapter into the
// scheduler service. withCoordinator routes view loads through the
// single-flight refresh gate, which only the long-running server needs.
func newApp(cfg *config.Config, log *zap.Logger, withCoordinator bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.DBPath, cfg.Cache.QuotaBytes)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := tadabase.NewClient(cfg.Vendor.BaseURL, cfg.Credentials(),
		tadabase.WithHTTPClient(&http.Client{Timeout: cfg.Vendor.Timeout}),
		tadabase.WithPageSize(cfg.Vendor.PageSize),
		tadabase.WithLogger(log.Named("tadabase")),
	)
	adapter := tadabase.NewAdapter(client, cfg.Vendor.Tables, cfg.Vendor.Department, log.Named("adapter"))

	c := cache.New(store, cache.WithLogger(log.Named("cache")), cache.WithPolicy(cfg.RetryPolicy()))
	svc := scheduler.New(adapter, c,
		scheduler.WithLogger(log.Named("service")),
		scheduler.WithConfig(cfg.ServiceConfig()),
		scheduler.WithRunStore(store),
	)

	a := &app{store: store, cache: c, svc: svc, log: log}
	if withCoordinator {
		a.coord = refresh.New(refresh.RefresherFunc(svc.Refresh),
			refresh.WithLogger(log.Named("refresh")),
			refresh.WithCooldown(cfg.Refresh.Cooldown),
		)
		svc.SetRefresher(a.coord)
	}
	return a, nil
}

// loadWeek loads reference data and the week containing day.
func (a *app) loadWeek(ctx context.Context, day string) (calendar.ViewWindow, error) {
	if err := a.svc.LoadReference(ctx); err != nil {
		return calendar.ViewWindow{}, fmt.Errorf("load reference data: %w", err)
	}
	var week calendar.Week
	var err error
	if day == "" {
		week, err = calendar.GetWeekBoundaries(time.Now())
	} else {
		week, err = calendar.GetWeekBoundaries(day)
	}
	if err != nil {
		return calendar.ViewWindow{}, err
	}
	out, err := a.svc.Handle(ctx, scheduler.DatesSet{View: week.View()})
	if err != nil {
		return calendar.ViewWindow{}, err
	}
	if out.Window == nil {
		return calendar.ViewWindow{}, errors.New("view did not load")
	}
	return *out.Window, nil
}

func (a *app) Close() {
	a.svc.Close()
	if a.coord != nil {
		a.coord.Close()
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
}
