package main

import (
	"context"
	"testing"

	app "github.com/ShagaDAO/gap/internal/app"
	"github.com/ShagaDAO/gap/internal/config"
	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestUpdateServiceMetrics(t *testing.T) {
	convey.Convey("Given a started service", t, func() {
		cfg := config.New()
		cfg.WorkerCount = 1
		svc := app.New(cfg, app.WithLogger(logger.Discard()))
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()

		convey.Convey("Then refreshing gauges does not panic", func() {
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})

	convey.Convey("Given configuration from the environment", t, func() {
		t.Setenv("GAP_ADDR", ":18080")
		t.Setenv("GAP_WORKER_COUNT", "3")

		cfg, err := config.Load(context.Background())
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":18080")
		convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
	})
}
