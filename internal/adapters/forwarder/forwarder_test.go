package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func scored(source string) model.ScoredReading {
	return model.ScoredReading{
		ValidatedReading: model.ValidatedReading{
			Reading: model.Reading{
				SourceID:         source,
				Timestamp:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
				Voltage:          230,
				Current:          10,
				PowerConsumption: 2300,
			},
			Status: model.StatusValid,
		},
	}
}

// scriptedStore fails its first n calls with err and succeeds afterwards.
type scriptedStore struct {
	calls   atomic.Int32
	failFor int32
	err     error
}

func (s *scriptedStore) Send(_ context.Context, _ string, _ model.StoreRecord) error {
	if s.calls.Add(1) <= s.failFor {
		return s.err
	}
	return nil
}

func startForwarder(store Store, opts ...Option) *Forwarder {
	opts = append([]Option{WithBaseDelay(5 * time.Millisecond), WithAttemptTimeout(100 * time.Millisecond), WithWorkerCount(2)}, opts...)
	f := New(store, opts...)
	f.Start(context.Background())
	return f
}

func TestForwardRetries(t *testing.T) {
	Convey("Given a forwarder with max_retries 3", t, func() {
		So(logger.Init(), ShouldBeNil)
		transient := fmt.Errorf("%w: store answered 503", ErrTransientDelivery)

		Convey("When the store fails twice and then succeeds", func() {
			store := &scriptedStore{failFor: 2, err: transient}
			f := startForwarder(store, WithMaxRetries(3))
			defer func() { _ = f.Stop(context.Background()) }()

			res := f.Forward(context.Background(), scored("Mumbai"))

			Convey("Then it is delivered on exactly the third call", func() {
				So(res.Outcome, ShouldEqual, OutcomeDelivered)
				So(res.Err, ShouldBeNil)
				So(res.Attempts, ShouldEqual, 3)
				So(store.calls.Load(), ShouldEqual, 3)
				So(res.Delays, ShouldResemble, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond})
			})

			Convey("Then stats count one delivery and two retries", func() {
				st := f.Stats()
				So(st.Delivered, ShouldEqual, 1)
				So(st.Retries, ShouldEqual, 2)
				So(st.Failed, ShouldEqual, 0)
			})
		})

		Convey("When the store always fails", func() {
			store := &scriptedStore{failFor: 1 << 30, err: transient}
			f := startForwarder(store, WithMaxRetries(3))
			defer func() { _ = f.Stop(context.Background()) }()

			res := f.Forward(context.Background(), scored("Delhi"))

			Convey("Then it fails after exactly max_retries attempts", func() {
				So(res.Outcome, ShouldEqual, OutcomeFailed)
				So(res.Attempts, ShouldEqual, 3)
				So(store.calls.Load(), ShouldEqual, 3)
				So(errors.Is(res.Err, ErrRetryBudgetExhausted), ShouldBeTrue)
				So(errors.Is(res.Err, ErrTransientDelivery), ShouldBeTrue)
			})

			Convey("Then the inter-attempt delay increases", func() {
				So(len(res.Delays), ShouldEqual, 2)
				So(res.Delays[1], ShouldBeGreaterThan, res.Delays[0])
			})
		})

		Convey("When the store rejects the reading permanently", func() {
			store := &scriptedStore{failFor: 1 << 30, err: fmt.Errorf("%w: store answered 400", ErrPermanentDelivery)}
			f := startForwarder(store, WithMaxRetries(3))
			defer func() { _ = f.Stop(context.Background()) }()

			res := f.Forward(context.Background(), scored("Chennai"))

			Convey("Then it short-circuits after one call", func() {
				So(res.Outcome, ShouldEqual, OutcomeFailed)
				So(res.Attempts, ShouldEqual, 1)
				So(store.calls.Load(), ShouldEqual, 1)
				So(errors.Is(res.Err, ErrPermanentDelivery), ShouldBeTrue)
				So(errors.Is(res.Err, ErrRetryBudgetExhausted), ShouldBeFalse)
				So(res.Delays, ShouldBeEmpty)
			})
		})

		Convey("When an unclassified error comes back", func() {
			store := &scriptedStore{failFor: 1 << 30, err: errors.New("connection reset")}
			f := startForwarder(store, WithMaxRetries(2))
			defer func() { _ = f.Stop(context.Background()) }()

			res := f.Forward(context.Background(), scored("Kolkata"))

			Convey("Then it is treated as transient", func() {
				So(store.calls.Load(), ShouldEqual, 2)
				So(errors.Is(res.Err, ErrTransientDelivery), ShouldBeTrue)
			})
		})
	})
}

func TestForwardAttemptTimeout(t *testing.T) {
	Convey("Given a store slower than the per-attempt timeout", t, func() {
		So(logger.Init(), ShouldBeNil)
		var calls atomic.Int32
		slow := StoreFunc(func(ctx context.Context, _ string, _ model.StoreRecord) error {
			calls.Add(1)
			<-ctx.Done()
			return fmt.Errorf("%w: %w", ErrTransientDelivery, ctx.Err())
		})
		f := startForwarder(slow, WithMaxRetries(2), WithAttemptTimeout(20*time.Millisecond))
		defer func() { _ = f.Stop(context.Background()) }()

		res := f.Forward(context.Background(), scored("Bangalore"))

		Convey("Then each timeout counts as a retryable failure", func() {
			So(calls.Load(), ShouldEqual, 2)
			So(errors.Is(res.Err, ErrRetryBudgetExhausted), ShouldBeTrue)
			So(errors.Is(res.Err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestForwardAbandoned(t *testing.T) {
	Convey("Given a failing store and a long backoff", t, func() {
		So(logger.Init(), ShouldBeNil)
		store := &scriptedStore{failFor: 1 << 30, err: ErrTransientDelivery}
		f := startForwarder(store, WithMaxRetries(5), WithBaseDelay(100*time.Millisecond))
		defer func() { _ = f.Stop(context.Background()) }()

		Convey("When the caller gives up during the first backoff", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			start := time.Now()
			res := f.Forward(ctx, scored("Mumbai"))
			returnedAfter := time.Since(start)

			time.Sleep(400 * time.Millisecond)

			Convey("Then Forward returns promptly with ErrDeliveryAbandoned", func() {
				So(returnedAfter, ShouldBeLessThan, 90*time.Millisecond)
				So(errors.Is(res.Err, ErrDeliveryAbandoned), ShouldBeTrue)
				So(errors.Is(res.Err, context.DeadlineExceeded), ShouldBeTrue)
			})

			Convey("Then no further retries are scheduled", func() {
				So(store.calls.Load(), ShouldEqual, 1)
				So(f.Stats().Waiting, ShouldEqual, 0)
			})
		})

		Convey("When the caller context is already done", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			res := f.Forward(ctx, scored("Mumbai"))

			Convey("Then nothing is attempted", func() {
				So(errors.Is(res.Err, ErrDeliveryAbandoned), ShouldBeTrue)
				So(store.calls.Load(), ShouldEqual, 0)
			})
		})
	})
}

func TestForwardBackpressure(t *testing.T) {
	Convey("Given one busy worker and a queue of one", t, func() {
		So(logger.Init(), ShouldBeNil)
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		blocking := StoreFunc(func(context.Context, string, model.StoreRecord) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil
		})
		f := New(blocking, WithWorkerCount(1), WithQueueSize(1), WithAttemptTimeout(time.Second))
		f.Start(context.Background())

		var wg sync.WaitGroup
		results := make([]Result, 2)
		wg.Add(1)
		go func() { defer wg.Done(); results[0] = f.Forward(context.Background(), scored("a")) }()
		<-started
		wg.Add(1)
		go func() { defer wg.Done(); results[1] = f.Forward(context.Background(), scored("b")) }()

		deadline := time.Now().Add(time.Second)
		for f.Stats().Queued < 1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}

		Convey("When a third reading arrives", func() {
			res := f.Forward(context.Background(), scored("c"))
			close(release)
			wg.Wait()
			_ = f.Stop(context.Background())

			Convey("Then it is refused with ErrBackpressure", func() {
				So(res.Outcome, ShouldEqual, OutcomeFailed)
				So(errors.Is(res.Err, ErrBackpressure), ShouldBeTrue)
				So(res.Attempts, ShouldEqual, 0)
			})

			Convey("Then the queued readings still get delivered", func() {
				So(results[0].Outcome, ShouldEqual, OutcomeDelivered)
				So(results[1].Outcome, ShouldEqual, OutcomeDelivered)
			})
		})
	})
}

func TestForwarderStop(t *testing.T) {
	Convey("Given a forwarder with a delivery waiting for its retry", t, func() {
		So(logger.Init(), ShouldBeNil)
		store := &scriptedStore{failFor: 1 << 30, err: ErrTransientDelivery}
		f := startForwarder(store, WithMaxRetries(3), WithBaseDelay(time.Minute))

		resCh := make(chan Result, 1)
		go func() { resCh <- f.Forward(context.Background(), scored("a")) }()

		deadline := time.Now().Add(time.Second)
		for f.Stats().Waiting < 1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}

		Convey("When the forwarder stops", func() {
			So(f.Stop(context.Background()), ShouldBeNil)

			Convey("Then the waiting delivery fails with ErrForwarderStopped", func() {
				var res Result
				select {
				case res = <-resCh:
				case <-time.After(time.Second):
				}
				So(errors.Is(res.Err, ErrForwarderStopped), ShouldBeTrue)
				So(res.Attempts, ShouldEqual, 1)
			})

			Convey("Then new readings are refused", func() {
				res := f.Forward(context.Background(), scored("b"))
				So(errors.Is(res.Err, ErrForwarderStopped), ShouldBeTrue)
			})

			Convey("Then Stop is idempotent", func() {
				So(f.Stop(context.Background()), ShouldBeNil)
			})
		})
	})
}

func TestBackoff(t *testing.T) {
	Convey("Given a base delay of one second", t, func() {
		So(logger.Init(), ShouldBeNil)
		f := New(&scriptedStore{}, WithBaseDelay(time.Second))

		Convey("Then attempt k waits base * 2^k", func() {
			So(f.backoff(0), ShouldEqual, time.Second)
			So(f.backoff(1), ShouldEqual, 2*time.Second)
			So(f.backoff(2), ShouldEqual, 4*time.Second)
		})
	})
}

func TestDeliveryStateMachine(t *testing.T) {
	Convey("Given a fresh delivery", t, func() {
		d := newDelivery("id", model.StoreRecord{})

		Convey("Then it moves attempting -> waiting -> attempting -> delivered", func() {
			n, ok := d.beginAttempt()
			So(ok, ShouldBeTrue)
			So(n, ShouldEqual, 1)
			So(d.State(), ShouldEqual, StateAttempting)

			So(d.wait(time.Hour, func() {}), ShouldBeTrue)
			So(d.State(), ShouldEqual, StateWaiting)

			n, _ = d.beginAttempt()
			So(n, ShouldEqual, 2)
			So(d.finish(StateDelivered, nil), ShouldBeTrue)
			So(d.State(), ShouldEqual, StateDelivered)

			res := <-d.done
			So(res.Outcome, ShouldEqual, OutcomeDelivered)
			So(res.Attempts, ShouldEqual, 2)
			So(res.Delays, ShouldResemble, []time.Duration{time.Hour})
		})

		Convey("Then terminal states are final", func() {
			So(d.finish(StateFailed, ErrPermanentDelivery), ShouldBeTrue)
			So(d.finish(StateDelivered, nil), ShouldBeFalse)
			_, ok := d.beginAttempt()
			So(ok, ShouldBeFalse)
		})

		Convey("Then an abandoned delivery cannot wait or attempt", func() {
			d.abandon()
			So(d.wait(time.Millisecond, func() {}), ShouldBeFalse)
			_, ok := d.beginAttempt()
			So(ok, ShouldBeFalse)
		})
	})
}
