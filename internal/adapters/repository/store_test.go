package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleAt(i int, state posture.State, score int) Sample {
	at := base.Add(time.Duration(i) * time.Second)
	return Sample{
		ID:     fmt.Sprintf("s-%04d", i),
		Source: "test",
		Metrics: posture.Metrics{
			Timestamp: float64(at.Unix()),
			Score:     score,
			State:     state,
			SlouchRaw: 1 - float64(score)/100,
			HeadTilt:  90,
		},
	}
}

func stores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "samples.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, open := range stores(t) {
		Convey("Given an empty "+name+" store", t, func() {
			s := open()
			Reset(func() { _ = s.Close() })

			Convey("Then Latest reports not found", func() {
				_, err := s.Latest(ctx)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				n, err := s.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})

			Convey("When samples are saved", func() {
				So(s.Save(ctx, sampleAt(0, posture.StateAligned, 95)), ShouldBeNil)
				So(s.Save(ctx, sampleAt(1, posture.StateNeutral, 70)), ShouldBeNil)
				So(s.Save(ctx, sampleAt(2, posture.StateSlouch, 40)), ShouldBeNil)
				So(s.Save(ctx, sampleAt(3, posture.StateUnknown, 0)), ShouldBeNil)

				Convey("Then Latest is the newest", func() {
					got, err := s.Latest(ctx)
					So(err, ShouldBeNil)
					if diff := cmp.Diff(sampleAt(3, posture.StateUnknown, 0), got); diff != "" {
						t.Errorf("latest mismatch (-want +got):\n%s", diff)
					}
				})

				Convey("Then a repeated id is rejected", func() {
					err := s.Save(ctx, sampleAt(1, posture.StateNeutral, 70))
					So(errors.Is(err, ErrDuplicate), ShouldBeTrue)
					n, _ := s.Count(ctx)
					So(n, ShouldEqual, 4)
				})

				Convey("Then History filters by time and keeps the newest under a limit", func() {
					all, err := s.History(ctx, Query{})
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 4)
					So(all[0].ID, ShouldEqual, "s-0000")

					window, err := s.History(ctx, Query{Since: base.Add(time.Second), Until: base.Add(2 * time.Second)})
					So(err, ShouldBeNil)
					So(window, ShouldHaveLength, 2)

					last, err := s.History(ctx, Query{Limit: 2})
					So(err, ShouldBeNil)
					So(last[0].ID, ShouldEqual, "s-0002")
					So(last[1].ID, ShouldEqual, "s-0003")
				})

				Convey("Then invalid queries fail", func() {
					_, err := s.History(ctx, Query{Limit: -1})
					So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
					_, err = s.History(ctx, Query{Since: base.Add(time.Hour), Until: base})
					So(errors.Is(err, ErrInvalidRange), ShouldBeTrue)
				})

				Convey("Then Summary aggregates the known frames", func() {
					sum, err := s.Summary(ctx, base)
					So(err, ShouldBeNil)
					So(sum.Count, ShouldEqual, 4)
					So(sum.Known, ShouldEqual, 3)
					So(sum.MeanScore, ShouldAlmostEqual, 205.0/3)
					So(sum.States[posture.StateUnknown], ShouldEqual, 1)
				})
			})

			Convey("When many writers save concurrently", func() {
				var wg sync.WaitGroup
				for w := 0; w < 4; w++ {
					wg.Add(1)
					go func(w int) {
						defer wg.Done()
						for i := 0; i < 25; i++ {
							_ = s.Save(ctx, sampleAt(w*25+i, posture.StateAligned, 90))
						}
					}(w)
				}
				wg.Wait()

				Convey("Then none are lost", func() {
					n, err := s.Count(ctx)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 100)
				})
			})
		})
	}
}

func TestMemoryStoreEviction(t *testing.T) {
	Convey("Given a memory store holding three samples", t, func() {
		s := NewMemoryStore(WithCapacity(3))
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			So(s.Save(ctx, sampleAt(i, posture.StateAligned, 90)), ShouldBeNil)
		}

		Convey("Then only the newest three remain and evicted ids may be reused", func() {
			all, err := s.History(ctx, Query{})
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 3)
			So(all[0].ID, ShouldEqual, "s-0002")
			So(s.Save(ctx, sampleAt(0, posture.StateAligned, 90)), ShouldBeNil)
		})

		Convey("Then a closed store refuses writes", func() {
			So(s.Close(), ShouldBeNil)
			So(errors.Is(s.Save(ctx, sampleAt(9, posture.StateAligned, 90)), ErrClosed), ShouldBeTrue)
		})
	})
}

func TestSQLiteMigrations(t *testing.T) {
	Convey("Given a database opened twice", t, func() {
		path := filepath.Join(t.TempDir(), "twice.db")
		first, err := OpenSQLite(context.Background(), path)
		So(err, ShouldBeNil)
		So(first.Save(context.Background(), sampleAt(1, posture.StateNeutral, 70)), ShouldBeNil)
		So(first.Close(), ShouldBeNil)

		second, err := OpenSQLite(context.Background(), path, WithBusyTimeoutMs(100))
		So(err, ShouldBeNil)
		defer func() { _ = second.Close() }()

		Convey("Then migrations are idempotent and data survives", func() {
			v, err := second.SchemaVersion()
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 2)
			n, err := second.Count(context.Background())
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})
	})
}

func TestSummarize(t *testing.T) {
	Convey("Given no samples", t, func() {
		sum := Summarize(nil)
		So(sum.Count, ShouldEqual, 0)
		So(sum.States[posture.StateAligned], ShouldEqual, 0)
	})

	Convey("Given a session with streaks broken by slouching and absence", t, func() {
		states := []posture.State{
			posture.StateAligned, posture.StateAligned, posture.StateSlouch,
			posture.StateAligned, posture.StateAligned, posture.StateAligned,
			posture.StateUnknown, posture.StateAligned,
		}
		scores := []int{90, 85, 50, 95, 100, 80, 0, 90}
		var samples []Sample
		for i := len(states) - 1; i >= 0; i-- { // unsorted input
			samples = append(samples, sampleAt(i, states[i], scores[i]))
		}
		sum := Summarize(samples)

		Convey("Then counts, ratio and streak follow time order", func() {
			So(sum.Count, ShouldEqual, 8)
			So(sum.Known, ShouldEqual, 7)
			So(sum.LongestAlignedStreak, ShouldEqual, 3)
			So(sum.AlignedRatio, ShouldAlmostEqual, 6.0/7)
			So(sum.MedianScore, ShouldEqual, 90)
			So(sum.P10Score, ShouldEqual, 50)
			So(sum.From, ShouldBeLessThan, sum.To)
		})
	})

	Convey("Given a single known sample", t, func() {
		sum := Summarize([]Sample{sampleAt(0, posture.StateNeutral, 70)})
		So(sum.StdDevScore, ShouldEqual, 0)
		So(sum.MeanScore, ShouldEqual, 70)
	})
}

func TestSummaryBeyondHistoryLimit(t *testing.T) {
	const n = maxHistoryLimit + 50
	ctx := context.Background()

	for name, open := range map[string]func() Store{
		"memory": func() Store { return NewMemoryStore(WithCapacity(2 * n)) },
		"sqlite": stores(t)["sqlite"],
	} {
		Convey("Given a "+name+" store holding more samples than one history page", t, func() {
			s := open()
			Reset(func() { _ = s.Close() })
			for i := 0; i < n; i++ {
				state, score := posture.StateAligned, 90
				if i%10 == 0 {
					state, score = posture.StateSlouch, 40
				}
				So(s.Save(ctx, sampleAt(i, state, score)), ShouldBeNil)
			}

			Convey("Then Summary aggregates all of them while History returns one page", func() {
				sum, err := s.Summary(ctx, base.Add(-time.Minute))
				So(err, ShouldBeNil)
				So(sum.Count, ShouldEqual, n)
				So(sum.States[posture.StateSlouch], ShouldEqual, n/10)
				So(sum.From, ShouldEqual, float64(base.Unix()))

				page, err := s.History(ctx, Query{Limit: n})
				So(err, ShouldBeNil)
				So(page, ShouldHaveLength, maxHistoryLimit)
			})
		})
	}
}

type lineLogger struct {
	logger.Logger
	msgs []string
}

func (l *lineLogger) Info(_ context.Context, msg string, _ ...logger.Field) {
	l.msgs = append(l.msgs, msg)
}

func TestMigrateLogger(t *testing.T) {
	Convey("Given migrate progress lines", t, func() {
		rec := &lineLogger{}
		l := migrateLogger{ctx: context.Background(), log: rec}
		l.Printf("%d/u %s (%v)\n", 1, "samples", time.Millisecond)

		Convey("Then the trailing newline is dropped", func() {
			So(rec.msgs, ShouldResemble, []string{"1/u samples (1ms)"})
		})
	})
}
