package repository

import (
	"context"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridedge/internal/domain/model"
)

// TestPostgresStore runs against a real database when
// GRIDEDGE_TEST_DATABASE_URL is set.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("GRIDEDGE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GRIDEDGE_TEST_DATABASE_URL not set")
	}

	Convey("Given a postgres store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := NewPostgresStore(ctx, url)
		So(err, ShouldBeNil)
		defer func() { _ = s.Close() }()

		source := "test-" + time.Now().Format("150405.000000000")
		now := time.Now().UTC().Truncate(time.Microsecond)

		Convey("When a reading with enrichment is saved", func() {
			rec := record(source, now, 2300)
			temp := 31.5
			peak := true
			rec.Temperature = &temp
			rec.IsPeakHour = &peak
			rec.ZoneDistribution = &model.ZoneDistribution{Industrial: 1, Residential: 2, Commercial: 3}
			rec.Anomaly = true
			rec.ZScore = 3.4

			id, err := s.Save(ctx, rec)
			So(err, ShouldBeNil)
			So(id, ShouldBeGreaterThan, 0)

			Convey("Then it reads back intact", func() {
				got, err := s.Readings(ctx, source, now.Add(-time.Minute))
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].Timestamp.Equal(now), ShouldBeTrue)
				So(*got[0].Temperature, ShouldEqual, 31.5)
				So(*got[0].IsPeakHour, ShouldBeTrue)
				So(got[0].ZoneDistribution, ShouldResemble, rec.ZoneDistribution)
				So(got[0].Humidity, ShouldBeNil)
				So(got[0].Anomaly, ShouldBeTrue)
				So(got[0].City, ShouldEqual, source)
			})

			Convey("And pruning after it removes it", func() {
				n, err := s.Prune(ctx, now.Add(time.Second))
				So(err, ShouldBeNil)
				So(n, ShouldBeGreaterThanOrEqualTo, 1)
				got, _ := s.Readings(ctx, source, time.Time{})
				So(got, ShouldBeEmpty)
			})
		})
	})
}
