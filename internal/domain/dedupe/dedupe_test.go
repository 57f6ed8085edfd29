package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/gridedge/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func deliver(ctx context.Context, g *dedupe.ReplayGuard, keys ...string) {
	for _, k := range keys {
		if st, _ := g.Acquire(ctx, k); st == dedupe.Claimed {
			g.Commit(ctx, k)
		}
	}
}

func TestReplayGuard(t *testing.T) {
	Convey("Given a new ReplayGuard", t, func() {
		ctx := context.Background()

		Convey("When creating a guard with default options", func() {
			g := dedupe.NewReplayGuard()

			Convey("Then it is enabled and empty", func() {
				So(g.Enabled(), ShouldBeTrue)
				So(g.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a new key is acquired", func() {
			g := dedupe.NewReplayGuard()
			st, wait := g.Acquire(ctx, "Mumbai|2024-03-01T12:00:00Z")

			Convey("Then the caller owns it", func() {
				So(st, ShouldEqual, dedupe.Claimed)
				So(wait, ShouldBeNil)
				So(g.Size(), ShouldEqual, 1)
			})

			Convey("And a second caller sees it in flight until the owner commits", func() {
				st2, wait2 := g.Acquire(ctx, "Mumbai|2024-03-01T12:00:00Z")
				So(st2, ShouldEqual, dedupe.InFlight)
				So(wait2, ShouldNotBeNil)

				g.Commit(ctx, "Mumbai|2024-03-01T12:00:00Z")
				_, open := <-wait2
				So(open, ShouldBeFalse)

				st3, _ := g.Acquire(ctx, "Mumbai|2024-03-01T12:00:00Z")
				So(st3, ShouldEqual, dedupe.Delivered)
				So(g.Size(), ShouldEqual, 1)
			})

			Convey("And a release wakes waiters and frees the key", func() {
				_, wait2 := g.Acquire(ctx, "Mumbai|2024-03-01T12:00:00Z")
				g.Release(ctx, "Mumbai|2024-03-01T12:00:00Z")
				_, open := <-wait2
				So(open, ShouldBeFalse)

				So(g.Size(), ShouldEqual, 0)
				st3, _ := g.Acquire(ctx, "Mumbai|2024-03-01T12:00:00Z")
				So(st3, ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When a delivered key is released", func() {
			g := dedupe.NewReplayGuard()
			deliver(ctx, g, "k")
			g.Release(ctx, "k")
			g.Release(ctx, "missing")

			Convey("Then it stays delivered", func() {
				st, _ := g.Acquire(ctx, "k")
				So(st, ShouldEqual, dedupe.Delivered)
			})
		})

		Convey("When the guard is at capacity", func() {
			g := dedupe.NewReplayGuard(dedupe.WithMaxSize(3))
			deliver(ctx, g, "a", "b", "c", "d")

			Convey("Then the oldest delivered key is forgotten first", func() {
				So(g.Size(), ShouldEqual, 3)
				st, _ := g.Acquire(ctx, "b")
				So(st, ShouldEqual, dedupe.Delivered)
				st, _ = g.Acquire(ctx, "a")
				So(st, ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When in-flight keys exceed the capacity", func() {
			g := dedupe.NewReplayGuard(dedupe.WithMaxSize(1))
			g.Acquire(ctx, "pending")
			deliver(ctx, g, "a", "b")

			Convey("Then only delivered keys are evicted", func() {
				st, _ := g.Acquire(ctx, "pending")
				So(st, ShouldEqual, dedupe.InFlight)
				st, _ = g.Acquire(ctx, "b")
				So(st, ShouldEqual, dedupe.Delivered)
				So(g.Size(), ShouldEqual, 2)
			})
		})

		Convey("When the guard is disabled", func() {
			g := dedupe.NewReplayGuard(dedupe.WithMaxSize(0))

			Convey("Then every acquire claims", func() {
				So(g.Enabled(), ShouldBeFalse)
				deliver(ctx, g, "k")
				st, _ := g.Acquire(ctx, "k")
				So(st, ShouldEqual, dedupe.Claimed)
				So(g.Size(), ShouldEqual, 0)
			})
		})
	})
}

func TestReplayGuardConcurrent(t *testing.T) {
	Convey("Given many goroutines racing on the same keys", t, func() {
		g := dedupe.NewReplayGuard()
		ctx := context.Background()

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			owners = make(map[string]int)
		)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					key := fmt.Sprintf("src|%d", i)
					for {
						st, wait := g.Acquire(ctx, key)
						if st == dedupe.InFlight {
							select {
							case <-wait:
							case <-time.After(time.Second):
							}
							continue
						}
						if st == dedupe.Claimed {
							mu.Lock()
							owners[key]++
							mu.Unlock()
							g.Commit(ctx, key)
						}
						break
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is owned exactly once", func() {
			So(len(owners), ShouldEqual, 100)
			for _, n := range owners {
				So(n, ShouldEqual, 1)
			}
			So(g.Size(), ShouldEqual, 100)
		})
	})
}
