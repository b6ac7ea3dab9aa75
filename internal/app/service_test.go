package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pixelcode/pixelsync/internal/adapters/leetcode"
	"github.com/pixelcode/pixelsync/internal/adapters/repository"
	service "github.com/pixelcode/pixelsync/internal/app"
	"github.com/pixelcode/pixelsync/internal/domain/model"
	"github.com/pixelcode/pixelsync/internal/domain/types"
)

var dbSeq int64

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeFetcher returns queued responses per username, repeating the last one.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]fetchResponse
	calls     map[string]int
	clock     *clock
	block     chan struct{}
	entered   chan struct{}
}

type fetchResponse struct {
	counts model.Counts
	err    error
}

func newFakeFetcher(c *clock) *fakeFetcher {
	return &fakeFetcher{responses: map[string][]fetchResponse{}, calls: map[string]int{}, clock: c}
}

func (f *fakeFetcher) set(username string, rs ...fetchResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[username] = rs
}

func (f *fakeFetcher) callCount(username string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[username]
}

func (f *fakeFetcher) FetchStats(_ context.Context, username string) (model.Stats, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[username]
	f.calls[username] = n + 1
	rs := f.responses[username]
	if len(rs) == 0 {
		return model.Stats{}, &leetcode.FetchError{Kind: leetcode.KindUserNotFound, Message: "user not found", Status: 404}
	}
	r := rs[min(n, len(rs)-1)]
	if r.err != nil {
		return model.Stats{}, r.err
	}
	return model.Stats{Counts: r.counts, FetchedAt: f.clock.Now()}, nil
}

// failingStore fails UpdateProgressionState inside every transaction.
type failingStore struct {
	repository.Store
}

type failingTx struct {
	repository.Tx
}

func (f failingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, failingTx{Tx: tx})
	})
}

func (failingTx) UpdateProgressionState(context.Context, model.ProgressionState) error {
	return errors.New("disk on fire")
}

func counts(easy, medium, hard int) model.Counts {
	return model.Counts{EasySolved: easy, MediumSolved: medium, HardSolved: hard, TotalSolved: easy + medium + hard}
}

func ok(c model.Counts) fetchResponse { return fetchResponse{counts: c} }

func rateLimited(after int) fetchResponse {
	return fetchResponse{err: &leetcode.FetchError{
		Kind: leetcode.KindRateLimited, Message: "failed to reach platform", Status: 429, Retryable: true, RetryAfter: &after,
	}}
}

func permanent() fetchResponse {
	return fetchResponse{err: &leetcode.FetchError{Kind: leetcode.KindServerError, Message: "failed to reach platform", Status: 400}}
}

func openStore(ctx context.Context) *repository.SQLStore {
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	st, err := repository.Open(ctx, repository.DriverSQLite, dsn)
	So(err, ShouldBeNil)
	return st
}

var day1 = time.Date(2024, 3, 9, 0, 10, 0, 0, time.UTC)

func newService(st repository.Store, f *fakeFetcher, c *clock, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithClock(c.Now),
		service.WithPacing(0),
		service.WithRetryDelays(time.Millisecond, 5*time.Millisecond),
	}
	return service.New(st, f, append(base, opts...)...)
}

func TestRecordDailySnapshot(t *testing.T) {
	Convey("Given a linked user and a platform", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		svc := newService(st, f, c)
		So(svc.LinkUser(ctx, "u1", "alice", 0), ShouldBeNil)

		Convey("When the first snapshot is recorded", func() {
			f.set("alice", ok(counts(10, 5, 1)))
			res := svc.RecordDailySnapshot(ctx, "u1", "alice")

			Convey("Then it is a baseline with no progress", func() {
				So(res.Status, ShouldEqual, types.StatusOK)
				So(res.UserID, ShouldEqual, "u1")
				snap, err := st.FindSnapshot(ctx, "u1", day1)
				So(err, ShouldBeNil)
				So(snap.TotalSolved, ShouldEqual, 16)
				rows, err := st.ProgressHistory(ctx, "u1", 14)
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
				state, err := st.GetProgressionState(ctx, "u1")
				So(err, ShouldBeNil)
				So(state.TotalXP, ShouldEqual, 0)
			})

			Convey("And it is recorded again the same day", func() {
				again := svc.RecordDailySnapshot(ctx, "u1", "alice")

				Convey("Then it is skipped without calling the platform", func() {
					So(again.Status, ShouldEqual, types.StatusSkipped)
					So(again.Reason, ShouldEqual, types.ReasonAlreadySnapshotted)
					So(f.callCount("alice"), ShouldEqual, 1)
				})
			})

			Convey("And the next day brings two easy and one medium", func() {
				c.Set(day1.AddDate(0, 0, 1))
				f.set("alice", ok(counts(12, 6, 1)))
				res := svc.RecordDailySnapshot(ctx, "u1", "alice")

				Convey("Then XP, level and streak advance", func() {
					So(res.Status, ShouldEqual, types.StatusOK)
					rows, err := st.ProgressHistory(ctx, "u1", 14)
					So(err, ShouldBeNil)
					So(len(rows), ShouldEqual, 1)
					So(rows[0].DeltaEasy, ShouldEqual, 2)
					So(rows[0].DeltaMedium, ShouldEqual, 1)
					So(rows[0].DeltaTotal, ShouldEqual, 3)
					So(rows[0].XPEarned, ShouldEqual, 45)
					So(rows[0].StreakAfter, ShouldEqual, 1)

					state, err := st.GetProgressionState(ctx, "u1")
					So(err, ShouldBeNil)
					So(state.TotalXP, ShouldEqual, 45)
					So(state.Level, ShouldEqual, 6)
					So(state.Streak, ShouldEqual, 1)
					So(state.LastSnapshotAt, ShouldNotBeNil)
				})
			})

			Convey("And the next day the platform reports a regression", func() {
				c.Set(day1.AddDate(0, 0, 1))
				f.set("alice", ok(counts(9, 5, 1)))
				res := svc.RecordDailySnapshot(ctx, "u1", "alice")

				Convey("Then deltas clamp to zero and the streak resets", func() {
					So(res.Status, ShouldEqual, types.StatusOK)
					rows, _ := st.ProgressHistory(ctx, "u1", 14)
					So(rows[0].DeltaEasy, ShouldEqual, 0)
					So(rows[0].DeltaTotal, ShouldEqual, 0)
					So(rows[0].XPEarned, ShouldEqual, 0)
					So(rows[0].StreakAfter, ShouldEqual, 0)
				})
			})
		})

		Convey("When the platform rate limits", func() {
			f.set("alice", rateLimited(2))
			res := svc.RecordDailySnapshot(ctx, "u1", "alice")

			Convey("Then the failure is retryable and nothing is stored", func() {
				So(res.Status, ShouldEqual, types.StatusFailed)
				So(res.Retryable, ShouldBeTrue)
				So(*res.RetryAfterSeconds, ShouldEqual, 2)
				So(res.ErrorClass, ShouldEqual, string(leetcode.ClassTransientExternal))
				_, err := st.FindSnapshot(ctx, "u1", day1)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the username is empty", func() {
			res := svc.RecordDailySnapshot(ctx, "u1", "")

			Convey("Then it fails as input before any fetch", func() {
				So(res.Status, ShouldEqual, types.StatusFailed)
				So(res.ErrorClass, ShouldEqual, string(leetcode.ClassInput))
				So(res.Retryable, ShouldBeFalse)
				So(f.callCount(""), ShouldEqual, 0)
			})
		})
	})
}

func TestStreakFreeze(t *testing.T) {
	Convey("Given a user on a five day streak with one freeze token", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		svc := newService(st, f, c)
		So(svc.LinkUser(ctx, "u1", "alice", 1), ShouldBeNil)

		f.set("alice", ok(counts(3, 0, 0)))
		So(svc.RecordDailySnapshot(ctx, "u1", "alice").Status, ShouldEqual, types.StatusOK)
		So(st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			s, err := tx.GetProgressionState(ctx, "u1")
			if err != nil {
				return err
			}
			s.Streak = 5
			return tx.UpdateProgressionState(ctx, s)
		}), ShouldBeNil)

		Convey("When a day passes with no new solves", func() {
			c.Set(day1.AddDate(0, 0, 1))
			So(svc.RecordDailySnapshot(ctx, "u1", "alice").Status, ShouldEqual, types.StatusOK)

			Convey("Then the freeze keeps the streak and is consumed", func() {
				state, err := st.GetProgressionState(ctx, "u1")
				So(err, ShouldBeNil)
				So(state.Streak, ShouldEqual, 5)
				So(state.StreakFreezeTokens, ShouldEqual, 0)
			})

			Convey("And another idle day resets the streak", func() {
				c.Set(day1.AddDate(0, 0, 2))
				So(svc.RecordDailySnapshot(ctx, "u1", "alice").Status, ShouldEqual, types.StatusOK)
				state, _ := st.GetProgressionState(ctx, "u1")
				So(state.Streak, ShouldEqual, 0)
				So(state.StreakFreezeTokens, ShouldEqual, 0)
			})
		})
	})
}

func TestAtomicity(t *testing.T) {
	Convey("Given a store whose state update fails", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		f.set("alice", ok(counts(1, 0, 0)))
		So(newService(st, f, c).LinkUser(ctx, "u1", "alice", 0), ShouldBeNil)
		So(newService(st, f, c).RecordDailySnapshot(ctx, "u1", "alice").Status, ShouldEqual, types.StatusOK)

		c.Set(day1.AddDate(0, 0, 1))
		f.set("alice", ok(counts(3, 0, 0)))
		res := newService(failingStore{Store: st}, f, c).RecordDailySnapshot(ctx, "u1", "alice")

		Convey("Then the day leaves no snapshot, no progress and no state change", func() {
			So(res.Status, ShouldEqual, types.StatusFailed)
			So(res.Retryable, ShouldBeFalse)
			So(res.Reason, ShouldStartWith, "persistence:")
			So(res.ErrorClass, ShouldEqual, service.ErrorClassPersistence)

			_, err := st.FindSnapshot(ctx, "u1", c.Now())
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			rows, _ := st.ProgressHistory(ctx, "u1", 14)
			So(rows, ShouldBeEmpty)
			state, _ := st.GetProgressionState(ctx, "u1")
			So(state.TotalXP, ShouldEqual, 0)
		})

		Convey("Then a later healthy run for the same day succeeds", func() {
			again := newService(st, f, c).RecordDailySnapshot(ctx, "u1", "alice")
			So(again.Status, ShouldEqual, types.StatusOK)
			state, _ := st.GetProgressionState(ctx, "u1")
			So(state.TotalXP, ShouldEqual, 20)
		})
	})
}

func TestConcurrentSameUser(t *testing.T) {
	Convey("Given a fetch that is in flight", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		f.set("alice", ok(counts(1, 0, 0)))
		f.block = make(chan struct{})
		f.entered = make(chan struct{}, 1)
		svc := newService(st, f, c)
		So(svc.LinkUser(ctx, "u1", "alice", 0), ShouldBeNil)

		first := make(chan types.SyncResult, 1)
		go func() { first <- svc.RecordDailySnapshot(ctx, "u1", "alice") }()
		<-f.entered

		second := svc.RecordDailySnapshot(ctx, "u1", "alice")
		close(f.block)
		firstRes := <-first

		Convey("Then the second caller is skipped and one snapshot exists", func() {
			So(second.Status, ShouldEqual, types.StatusSkipped)
			So(second.Reason, ShouldEqual, types.ReasonSyncInProgress)
			So(firstRes.Status, ShouldEqual, types.StatusOK)
			So(f.callCount("alice"), ShouldEqual, 1)
		})
	})
}

func TestRunDailyBatch(t *testing.T) {
	Convey("Given three linked users and one unlinked", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		svc := newService(st, f, c)
		So(svc.LinkUser(ctx, "a", "alice", 0), ShouldBeNil)
		So(svc.LinkUser(ctx, "b", "bob", 0), ShouldBeNil)
		So(svc.LinkUser(ctx, "c", "carol", 0), ShouldBeNil)
		So(svc.LinkUser(ctx, "d", "", 0), ShouldBeNil)

		f.set("alice", ok(counts(1, 1, 1)))
		f.set("bob", rateLimited(2), ok(counts(2, 0, 0)))
		f.set("carol", permanent())

		report, err := svc.RunDailyBatch(ctx)

		Convey("Then every linked user has a result in id order", func() {
			So(err, ShouldBeNil)
			So(report.Processed, ShouldEqual, 3)
			So(report.Results[0].UserID, ShouldEqual, "a")
			So(report.Results[1].UserID, ShouldEqual, "b")
			So(report.Results[2].UserID, ShouldEqual, "c")
		})

		Convey("Then a retryable failure is retried exactly once", func() {
			So(f.callCount("bob"), ShouldEqual, 2)
			So(report.Results[1].Status, ShouldEqual, types.StatusOK)
		})

		Convey("Then a permanent failure is not retried and does not stop the batch", func() {
			So(f.callCount("carol"), ShouldEqual, 1)
			So(report.Results[2].Status, ShouldEqual, types.StatusFailed)
			So(report.Results[0].Status, ShouldEqual, types.StatusOK)
		})

		Convey("When the batch runs again the same day", func() {
			again, err := svc.RunDailyBatch(ctx)

			Convey("Then snapshotted users are skipped", func() {
				So(err, ShouldBeNil)
				So(again.Results[0].Status, ShouldEqual, types.StatusSkipped)
				So(again.Results[1].Status, ShouldEqual, types.StatusSkipped)
				So(f.callCount("alice"), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a user that stays rate limited", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		svc := newService(st, f, c, service.WithWorkerCount(2))
		So(svc.LinkUser(ctx, "a", "alice", 0), ShouldBeNil)
		f.set("alice", rateLimited(0))

		report, err := svc.RunDailyBatch(ctx)

		Convey("Then the second failure is final", func() {
			So(err, ShouldBeNil)
			So(f.callCount("alice"), ShouldEqual, 2)
			So(report.Results[0].Status, ShouldEqual, types.StatusFailed)
			So(report.Results[0].Retryable, ShouldBeTrue)
		})
	})

	Convey("Given no linked users", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		report, err := newService(st, newFakeFetcher(c), c).RunDailyBatch(ctx)

		Convey("Then the report is empty", func() {
			So(err, ShouldBeNil)
			So(report.Processed, ShouldEqual, 0)
			So(report.Results, ShouldBeEmpty)
		})
	})
}

func TestSyncUserAndProgress(t *testing.T) {
	Convey("Given stored users", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		svc := newService(st, f, c)
		So(svc.LinkUser(ctx, "u1", "alice", 0), ShouldBeNil)
		So(svc.LinkUser(ctx, "u2", "", 0), ShouldBeNil)

		Convey("When syncing an unknown, unlinked or blank user", func() {
			_, err := svc.SyncUser(ctx, "ghost")
			So(errors.Is(err, service.ErrUnknownUser), ShouldBeTrue)
			_, err = svc.SyncUser(ctx, "u2")
			So(errors.Is(err, service.ErrUsernameNotLinked), ShouldBeTrue)
			_, err = svc.SyncUser(ctx, " ")
			So(errors.Is(err, service.ErrMissingUserID), ShouldBeTrue)
		})

		Convey("When syncing over three days and reading progress", func() {
			for i, cs := range []model.Counts{counts(1, 0, 0), counts(2, 0, 0), counts(2, 1, 0)} {
				c.Set(day1.AddDate(0, 0, i))
				f.set("alice", ok(cs))
				res, err := svc.SyncUser(ctx, "u1")
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, types.StatusOK)
			}

			view, err := svc.Progress(ctx, "u1", 3)

			Convey("Then the window is clamped and rows are oldest first", func() {
				So(err, ShouldBeNil)
				So(view.Days, ShouldEqual, 7)
				So(len(view.Progress), ShouldEqual, 2)
				So(view.Progress[0].XPEarned, ShouldEqual, 10)
				So(view.Progress[1].XPEarned, ShouldEqual, 25)
				So(view.LatestSnapshot, ShouldNotBeNil)
				So(view.LatestSnapshot.SnapshotDate, ShouldEqual, "2024-03-11")
				So(view.State.TotalXP, ShouldEqual, 35)
				So(view.State.Level, ShouldEqual, 5)
				So(view.State.Streak, ShouldEqual, 2)
			})
		})

		Convey("When reading progress of a user without snapshots", func() {
			view, err := svc.Progress(ctx, "u2", 100)
			So(err, ShouldBeNil)
			So(view.Days, ShouldEqual, 60)
			So(view.LatestSnapshot, ShouldBeNil)
			So(view.Progress, ShouldBeEmpty)
		})
	})
}

func TestClampDays(t *testing.T) {
	Convey("Given requested windows", t, func() {
		So(service.ClampDays(1), ShouldEqual, 7)
		So(service.ClampDays(14), ShouldEqual, 14)
		So(service.ClampDays(61), ShouldEqual, 60)
		So(service.New(nil, nil).DefaultDays(), ShouldEqual, 14)
		So(service.New(nil, nil, service.WithProgressDays(90)).DefaultDays(), ShouldEqual, 60)
	})
}

// cancellingFetcher cancels the run once its first fetch has returned.
type cancellingFetcher struct {
	*fakeFetcher
	cancel context.CancelFunc
	once   sync.Once
}

func (f *cancellingFetcher) FetchStats(ctx context.Context, username string) (model.Stats, error) {
	stats, err := f.fakeFetcher.FetchStats(ctx, username)
	f.once.Do(f.cancel)
	return stats, err
}

func TestRunDailyBatchCancelled(t *testing.T) {
	Convey("Given three linked users and a run cancelled after the first fetch", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		f.set("alice", ok(counts(1, 0, 0)))
		f.set("bob", ok(counts(2, 0, 0)))
		f.set("carol", ok(counts(3, 0, 0)))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		svc := service.New(st, &cancellingFetcher{fakeFetcher: f, cancel: cancel},
			service.WithClock(c.Now),
			service.WithPacing(0),
			service.WithRetryDelays(time.Millisecond, 5*time.Millisecond),
		)
		So(svc.LinkUser(ctx, "a", "alice", 0), ShouldBeNil)
		So(svc.LinkUser(ctx, "b", "bob", 0), ShouldBeNil)
		So(svc.LinkUser(ctx, "c", "carol", 0), ShouldBeNil)

		report, err := svc.RunDailyBatch(runCtx)

		Convey("Then the fetched user is still persisted", func() {
			So(err, ShouldBeNil)
			So(report.Processed, ShouldEqual, 3)
			So(report.Results[0].Status, ShouldEqual, types.StatusOK)
			_, err := st.FindSnapshot(ctx, "a", day1)
			So(err, ShouldBeNil)
		})

		Convey("Then the remaining users are reported as cancelled, not as persistence failures", func() {
			for _, res := range report.Results[1:] {
				So(res.Status, ShouldEqual, types.StatusFailed)
				So(res.ErrorClass, ShouldEqual, service.ErrorClassCancelled)
				So(res.Reason, ShouldStartWith, types.ReasonCancelled)
				So(res.Retryable, ShouldBeFalse)
			}
			So(report.Results[1].UserID, ShouldEqual, "b")
			So(report.Results[2].UserID, ShouldEqual, "c")
			So(f.callCount("bob"), ShouldEqual, 0)
			So(f.callCount("carol"), ShouldEqual, 0)
		})

		Convey("Then a later run picks them up", func() {
			again, err := svc.RunDailyBatch(ctx)
			So(err, ShouldBeNil)
			So(again.Results[0].Status, ShouldEqual, types.StatusSkipped)
			So(again.Results[1].Status, ShouldEqual, types.StatusOK)
			So(again.Results[2].Status, ShouldEqual, types.StatusOK)
		})
	})

	Convey("Given a run that expires while waiting to retry", t, func() {
		ctx := context.Background()
		st := openStore(ctx)
		defer st.Close()
		c := &clock{now: day1}
		f := newFakeFetcher(c)
		f.set("alice", rateLimited(2), ok(counts(1, 0, 0)))
		svc := newService(st, f, c, service.WithRetryDelays(time.Second, 3*time.Second))
		So(svc.LinkUser(ctx, "a", "alice", 0), ShouldBeNil)

		runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		start := time.Now()
		report, err := svc.RunDailyBatch(runCtx)

		Convey("Then the wait is abandoned and the first failure stands", func() {
			So(err, ShouldBeNil)
			So(time.Since(start), ShouldBeLessThan, 1500*time.Millisecond)
			So(f.callCount("alice"), ShouldEqual, 1)
			So(report.Results[0].Status, ShouldEqual, types.StatusFailed)
			So(report.Results[0].Retryable, ShouldBeTrue)
		})
	})
}
