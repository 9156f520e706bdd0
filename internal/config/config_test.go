package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/ShagaDAO/gap/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then the shard and archive limits match the documented defaults", func() {
			convey.So(cfg.MaxVideoBytes, convey.ShouldEqual, int64(512<<20))
			convey.So(cfg.MaxControlsBytes, convey.ShouldEqual, int64(100<<20))
			convey.So(cfg.MaxControlsRecords, convey.ShouldEqual, int64(5_000_000))
			convey.So(cfg.MaxArchiveEntries, convey.ShouldEqual, 10_000)
			convey.So(cfg.MaxArchiveBytes, convey.ShouldEqual, int64(2<<30))
			convey.So(cfg.MaxExpansionRatio, convey.ShouldEqual, 20.0)
			convey.So(cfg.MaxFrames, convey.ShouldEqual, 100)
			convey.So(cfg.FrameIntervalSec, convey.ShouldEqual, 5.0)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then disabling a guard is rejected", func() {
			cfg.MaxExpansionRatio = 0
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
