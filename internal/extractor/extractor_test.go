package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var frame = image.NewRGBA(image.Rect(0, 0, 4, 4))

func staticFactory(models *[]*StaticModel, set *pose.Set, delay time.Duration) Factory {
	var mu sync.Mutex
	return func() (Model, error) {
		mu.Lock()
		defer mu.Unlock()
		m := &StaticModel{Set: set, Delay: delay}
		*models = append(*models, m)
		return m, nil
	}
}

func TestPool(t *testing.T) {
	Convey("Given a pool with a single model handle", t, func() {
		var models []*StaticModel
		set := pose.FromSlice(make([]pose.Landmark, pose.NumLandmarks))
		p, err := NewPool(staticFactory(&models, set, 5*time.Millisecond), WithSize(1))
		So(err, ShouldBeNil)
		Reset(func() { _ = p.Close() })

		Convey("When many callers extract concurrently", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					got, err := p.Extract(context.Background(), frame)
					if err == nil && got.Len() != pose.NumLandmarks {
						err = errors.New("wrong landmark count")
					}
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then every call succeeds and the handle never overlaps", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				So(models, ShouldHaveLength, 1)
				So(models[0].Calls(), ShouldEqual, 20)
				So(models[0].MaxOverlap(), ShouldEqual, 1)
			})
		})

		Convey("When the handle is busy", func() {
			var slow []*StaticModel
			sp, err := NewPool(staticFactory(&slow, set, 300*time.Millisecond))
			So(err, ShouldBeNil)
			defer func() { _ = sp.Close() }()

			go func() { _, _ = sp.Extract(context.Background(), frame) }()
			So(waitFor(func() bool { return sp.Busy() == 1 }), ShouldBeTrue)
			_, err = sp.TryExtract(context.Background(), frame)

			Convey("Then TryExtract drops the frame", func() {
				So(errors.Is(err, ErrBusy), ShouldBeTrue)
			})
		})

		Convey("When the caller's context is cancelled while waiting", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := p.Extract(ctx, frame)

			Convey("Then the context error is returned", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When the pool is closed", func() {
			So(p.Close(), ShouldBeNil)
			_, err := p.Extract(context.Background(), frame)
			_, tryErr := p.TryExtract(context.Background(), frame)

			Convey("Then calls fail with ErrClosed and handles are closed", func() {
				So(errors.Is(err, ErrClosed), ShouldBeTrue)
				So(errors.Is(tryErr, ErrClosed), ShouldBeTrue)
				So(models[0].Closed(), ShouldBeTrue)
				So(p.Close(), ShouldBeNil)
			})
		})
	})

	Convey("Given a pool of three handles", t, func() {
		var models []*StaticModel
		p, err := NewPool(staticFactory(&models, nil, 2*time.Millisecond), WithSize(3))
		So(err, ShouldBeNil)
		defer func() { _ = p.Close() }()

		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = p.Extract(context.Background(), frame)
			}()
		}
		wg.Wait()

		Convey("Then work spreads and no handle is shared", func() {
			So(p.Size(), ShouldEqual, 3)
			var total int64
			for _, m := range models {
				So(m.MaxOverlap(), ShouldBeLessThanOrEqualTo, 1)
				total += m.Calls()
			}
			So(total, ShouldEqual, 30)
		})
	})

	Convey("Given a model slower than the inference timeout", t, func() {
		var models []*StaticModel
		p, err := NewPool(staticFactory(&models, nil, time.Second), WithTimeout(10*time.Millisecond))
		So(err, ShouldBeNil)
		defer func() { _ = p.Close() }()

		_, err = p.Extract(context.Background(), frame)

		Convey("Then the deadline surfaces", func() {
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})

	Convey("Given a failing factory", t, func() {
		calls := 0
		var first *StaticModel
		_, err := NewPool(func() (Model, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("no gpu")
			}
			first = &StaticModel{}
			return first, nil
		}, WithSize(2))

		Convey("Then construction fails and created handles are closed", func() {
			So(err, ShouldNotBeNil)
			So(first.Closed(), ShouldBeTrue)
		})
	})

	Convey("Given no factory", t, func() {
		_, err := NewPool(nil)
		So(errors.Is(err, ErrNoFactory), ShouldBeTrue)
	})
}

func TestRemoteModel(t *testing.T) {
	Convey("Given a pose sidecar", t, func() {
		var gotType string
		var gotBytes int
		status := http.StatusOK
		payload := `{"landmarks":[{"x":0.5,"y":0.1,"visibility":0.99}]}`
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotType = r.Header.Get("Content-Type")
			b, _ := io.ReadAll(r.Body)
			gotBytes = len(b)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(payload))
		}))
		defer srv.Close()
		m := NewRemoteModel(srv.URL, srv.Client())

		Convey("When it finds a person", func() {
			set, err := m.Detect(context.Background(), frame)

			Convey("Then landmarks are decoded from the JPEG round trip", func() {
				So(err, ShouldBeNil)
				So(gotType, ShouldEqual, "image/jpeg")
				So(gotBytes, ShouldBeGreaterThan, 0)
				p, ok := set.Get(pose.Nose)
				So(ok, ShouldBeTrue)
				So(p.X, ShouldEqual, 0.5)
			})
		})

		Convey("When it finds nobody", func() {
			payload = `{"landmarks":null}`
			set, err := m.Detect(context.Background(), frame)

			Convey("Then the result is a nil set without error", func() {
				So(err, ShouldBeNil)
				So(set, ShouldBeNil)
			})
		})

		Convey("When it fails", func() {
			status = http.StatusInternalServerError
			payload = "model crashed"
			_, err := m.Detect(context.Background(), frame)

			Convey("Then ErrUnavailable carries the status", func() {
				So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "model crashed")
			})
		})

		Convey("When it answers garbage", func() {
			payload = `{"landmarks":`
			_, err := m.Detect(context.Background(), frame)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a remote factory without a url", t, func() {
		_, err := RemoteFactory("", nil)()
		So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
	})

	Convey("Given the sidecar response shape", t, func() {
		var r detectResponse
		So(json.Unmarshal([]byte(`{"landmarks":{"left_hip":{"x":1,"y":2}}}`), &r), ShouldBeNil)
		So(r.Landmarks.Len(), ShouldEqual, 1)
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
