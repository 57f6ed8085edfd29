package meter_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/internal/domain/validation"
	"github.com/okian/gridedge/internal/meter"
	"github.com/okian/gridedge/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type countingSink struct {
	mu       sync.Mutex
	readings []model.RawReading
	err      error
}

func (s *countingSink) Send(_ context.Context, r model.RawReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return s.err
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

type fixedReadiness bool

func (f fixedReadiness) Ready(context.Context) bool { return bool(f) }

func TestGenerator(t *testing.T) {
	convey.Convey("Given a generator without spikes", t, func() {
		g := meter.NewGenerator("Mumbai", rand.New(rand.NewPCG(1, 2)), 0)
		start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

		convey.Convey("Then readings stay within the nominal bands and validate", func() {
			profile := meter.ProfileFor("Mumbai")
			for i := 0; i < 200; i++ {
				raw := g.Generate(start.Add(time.Duration(i) * 7 * time.Minute))
				r, err := validation.Parse(raw)
				convey.So(err, convey.ShouldBeNil)
				convey.So(r.SourceID, convey.ShouldEqual, "Mumbai")
				convey.So(r.Voltage, convey.ShouldBeBetweenOrEqual, 225, 235)
				convey.So(r.Current, convey.ShouldBeBetweenOrEqual, 8, 12)
				convey.So(*r.IsAnomaly, convey.ShouldBeFalse)
				convey.So(*r.Temperature, convey.ShouldBeBetweenOrEqual, profile.Temperature.Min, profile.Temperature.Max)
				convey.So(*r.Humidity, convey.ShouldBeBetweenOrEqual, profile.Humidity.Min, profile.Humidity.Max)
				convey.So(r.ZoneDistribution, convey.ShouldNotBeNil)
				sum := r.ZoneDistribution.Industrial + r.ZoneDistribution.Residential + r.ZoneDistribution.Commercial
				convey.So(sum, convey.ShouldAlmostEqual, r.PowerConsumption, r.PowerConsumption*0.06)
			}
		})

		convey.Convey("Then the timestamp is UTC and marks peak hours", func() {
			raw := g.Generate(time.Date(2025, 3, 1, 9, 15, 0, 0, time.UTC))
			convey.So(raw["timestamp"], convey.ShouldEqual, "2025-03-01T09:15:00Z")
			convey.So(raw["is_peak_hour"], convey.ShouldEqual, true)

			raw = g.Generate(time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC))
			convey.So(raw["is_peak_hour"], convey.ShouldEqual, false)
		})
	})

	convey.Convey("Given a generator that always spikes", t, func() {
		g := meter.NewGenerator("Delhi", rand.New(rand.NewPCG(3, 4)), 1)

		convey.Convey("Then every reading is marked and scaled", func() {
			for i := 0; i < 50; i++ {
				r, err := validation.Parse(g.Generate(time.Now()))
				convey.So(err, convey.ShouldBeNil)
				convey.So(*r.IsAnomaly, convey.ShouldBeTrue)
				low := r.Current >= 4 && r.Current <= 6
				high := r.Current >= 16 && r.Current <= 24
				convey.So(low || high, convey.ShouldBeTrue)
			}
		})
	})

	convey.Convey("Given an unknown city", t, func() {
		convey.So(meter.ProfileFor("Atlantis"), convey.ShouldResemble, meter.DefaultProfile)
		raw := meter.NewGenerator("Atlantis", nil, 0).Generate(time.Now())
		convey.So(raw["source_id"], convey.ShouldEqual, "Atlantis")
	})
}

func TestMeterRun(t *testing.T) {
	convey.Convey("Given a meter with a short interval", t, func() {
		sink := &countingSink{}
		m := meter.New("Chennai", sink, meter.WithInterval(time.Millisecond, 2*time.Millisecond))
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		convey.Convey("When it runs", func() {
			m.Run(ctx)

			convey.Convey("Then readings are sent and counted", func() {
				convey.So(sink.count(), convey.ShouldBeGreaterThan, 3)
				convey.So(m.Stats().Sent, convey.ShouldEqual, sink.count())
				convey.So(m.Stats().Failed, convey.ShouldEqual, 0)
			})
		})
	})

	convey.Convey("Given an edge that is not ready", t, func() {
		sink := &countingSink{}
		m := meter.New("Chennai", sink,
			meter.WithInterval(time.Millisecond, time.Millisecond),
			meter.WithProber(fixedReadiness(false)),
			meter.WithHealthWait(5*time.Millisecond),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		m.Run(ctx)

		convey.Convey("Then nothing is sent", func() {
			convey.So(sink.count(), convey.ShouldEqual, 0)
		})
	})

	convey.Convey("Given a sink that always fails", t, func() {
		sink := &countingSink{err: errors.New("boom")}
		m := meter.New("Kolkata", sink,
			meter.WithInterval(time.Millisecond, time.Millisecond),
			meter.WithMaxFailures(3),
			meter.WithCoolDown(time.Hour),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		m.Run(ctx)

		convey.Convey("Then the meter cools down after the failure budget", func() {
			convey.So(sink.count(), convey.ShouldEqual, 3)
			convey.So(m.Stats().Failed, convey.ShouldEqual, 3)
		})
	})
}

func TestFleet(t *testing.T) {
	convey.Convey("Given no cities", t, func() {
		_, err := meter.NewFleet(nil, &countingSink{})
		convey.So(errors.Is(err, meter.ErrNoCities), convey.ShouldBeTrue)
	})

	convey.Convey("Given a fleet of two meters", t, func() {
		sink := &countingSink{}
		f, err := meter.NewFleet([]string{"Mumbai", "Delhi"}, sink,
			meter.WithInterval(time.Millisecond, 2*time.Millisecond), meter.WithSeed(7))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then it starts once and stops once", func() {
			convey.So(f.Running(), convey.ShouldBeFalse)
			convey.So(f.Stop(), convey.ShouldBeFalse)

			convey.So(f.Start(context.Background()), convey.ShouldBeTrue)
			convey.So(f.Start(context.Background()), convey.ShouldBeFalse)
			convey.So(f.Running(), convey.ShouldBeTrue)

			time.Sleep(30 * time.Millisecond)
			convey.So(f.Stop(), convey.ShouldBeTrue)
			convey.So(f.Running(), convey.ShouldBeFalse)

			sent := sink.count()
			convey.So(sent, convey.ShouldBeGreaterThan, 0)
			convey.So(f.Stats().Sent, convey.ShouldEqual, sent)

			sources := map[any]bool{}
			for _, r := range sink.readings {
				sources[r["source_id"]] = true
			}
			convey.So(sources, convey.ShouldContainKey, "Mumbai")
			convey.So(sources, convey.ShouldContainKey, "Delhi")
		})

		convey.Convey("Then it can be restarted", func() {
			convey.So(f.Start(context.Background()), convey.ShouldBeTrue)
			convey.So(f.Stop(), convey.ShouldBeTrue)
			convey.So(f.Start(context.Background()), convey.ShouldBeTrue)
			convey.So(f.Stop(), convey.ShouldBeTrue)
		})
	})
}

func TestHTTPSink(t *testing.T) {
	convey.Convey("Given an edge endpoint", t, func() {
		var got atomic.Value
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/receive_data" || r.Method != http.MethodPost {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			got.Store(body)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		defer srv.Close()

		sink := meter.NewHTTPSink(srv.URL+"/", nil)

		convey.Convey("When the edge accepts", func() {
			err := sink.Send(context.Background(), model.RawReading{"source_id": "Mumbai", "voltage": 230.0})

			convey.Convey("Then the reading is posted as JSON", func() {
				convey.So(err, convey.ShouldBeNil)
				body := got.Load().(map[string]any)
				convey.So(body["source_id"], convey.ShouldEqual, "Mumbai")
				convey.So(body["voltage"], convey.ShouldEqual, 230.0)
			})
		})

		convey.Convey("When the edge refuses", func() {
			status = http.StatusServiceUnavailable
			err := sink.Send(context.Background(), model.RawReading{"source_id": "Mumbai"})

			convey.Convey("Then the send fails", func() {
				convey.So(errors.Is(err, meter.ErrSend), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "503")
			})
		})
	})
}
