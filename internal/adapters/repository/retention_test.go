package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridedge/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestRetention(t *testing.T) {
	Convey("Given a store with old and fresh readings", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
		s := NewMemoryStore()
		_, _ = s.Save(ctx, record("Mumbai", now.Add(-48*time.Hour), 1000))
		_, _ = s.Save(ctx, record("Mumbai", now.Add(-time.Hour), 1100))
		_, _ = s.Save(ctx, record("Delhi", now.Add(-30*time.Hour), 1200))

		r := NewRetention(s, 24*time.Hour, "@every 1h", nil)
		r.now = func() time.Time { return now }

		Convey("When a prune runs", func() {
			n, err := r.RunOnce(ctx)

			Convey("Then only readings past the max age are removed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				left, _ := s.Count(ctx)
				So(left, ShouldEqual, 1)
			})
		})

		Convey("When the job is scheduled and stopped", func() {
			So(r.Start(ctx), ShouldBeNil)
			So(func() { r.Stop() }, ShouldNotPanic)
		})

		Convey("When the schedule is invalid", func() {
			bad := NewRetention(s, 24*time.Hour, "every now and then", nil)
			err := bad.Start(ctx)
			So(errors.Is(err, ErrRetention), ShouldBeTrue)
		})

		Convey("When the max age is not positive", func() {
			err := NewRetention(s, 0, "@every 1h", nil).Start(ctx)
			So(errors.Is(err, ErrRetention), ShouldBeTrue)
		})

		Convey("When the store is closed", func() {
			_ = s.Close()
			_, err := r.RunOnce(ctx)
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
		})
	})
}
