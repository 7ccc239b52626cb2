package replay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestParseMix(t *testing.T) {
	Convey("Given mix strings", t, func() {
		m, err := ParseMix("upright=3, absent=1")
		So(err, ShouldBeNil)
		So(m[ProfileUpright], ShouldEqual, 3)
		So(m.String(), ShouldEqual, "absent=1,upright=3")

		_, err = ParseMix("upright")
		So(errors.Is(err, ErrInvalidMix), ShouldBeTrue)
		_, err = ParseMix("standing=1")
		So(errors.Is(err, ErrInvalidMix), ShouldBeTrue)
		_, err = ParseMix("upright=-1")
		So(errors.Is(err, ErrInvalidMix), ShouldBeTrue)
		_, err = ParseMix("upright=0")
		So(errors.Is(err, ErrInvalidMix), ShouldBeTrue)

		round, err := ParseMix(DefaultMix().String())
		So(err, ShouldBeNil)
		So(round, ShouldResemble, DefaultMix())
	})
}

func TestGenerateSamples(t *testing.T) {
	scorer, err := posture.NewScorer()
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	Convey("Given a seeded config", t, func() {
		cfg := &Config{NumSamples: 400, Seed: 42, RunID: "t"}
		So(cfg.normalize(), ShouldBeNil)

		a, err := generateSamples(context.Background(), cfg, start)
		So(err, ShouldBeNil)
		b, err := generateSamples(context.Background(), cfg, start)
		So(err, ShouldBeNil)

		Convey("Then the same seed yields the same samples", func() {
			So(a, ShouldHaveLength, 400)
			ja, _ := json.Marshal(a)
			jb, _ := json.Marshal(b)
			So(string(ja), ShouldEqual, string(jb))
			So(a[0].SampleID, ShouldEqual, "t-000000")
			So(a[1].TS, ShouldEqual, "2025-03-01T09:00:01Z")
		})

		Convey("Then every profile is drawn", func() {
			counts := countProfiles(a)
			for _, p := range []Profile{ProfileUpright, ProfileSlouched, ProfileTilted, ProfileAbsent} {
				So(counts[p], ShouldBeGreaterThan, 0)
			}
			So(counts[ProfileUpright], ShouldBeGreaterThan, counts[ProfileAbsent])
		})

		Convey("Then each profile scores to its expected state", func() {
			for _, s := range a {
				m, err := scorer.Score(s.Landmarks)
				So(err, ShouldBeNil)
				So(m.State, ShouldEqual, s.Profile.Expected())
			}
		})

		Convey("Then absent samples carry no landmarks", func() {
			for _, s := range a {
				if s.Profile == ProfileAbsent {
					So(s.Landmarks, ShouldBeNil)
				} else {
					_, err := s.Landmarks.Require(posture.Required()...)
					So(err, ShouldBeNil)
				}
			}
		})
	})

	Convey("Given a single-profile mix", t, func() {
		cfg := &Config{NumSamples: 20, Mix: Mix{ProfileTilted: 1}, RunID: "x"}
		So(cfg.normalize(), ShouldBeNil)
		got, err := generateSamples(context.Background(), cfg, start)
		So(err, ShouldBeNil)
		So(countProfiles(got)[ProfileTilted], ShouldEqual, 20)
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given an empty config", t, func() {
		cfg := &Config{}
		So(cfg.normalize(), ShouldBeNil)
		So(cfg.BaseURL, ShouldEqual, DefaultBaseURL)
		So(cfg.Mode, ShouldEqual, ModeSamples)
		So(cfg.RunID, ShouldHaveLength, 8)
		So(cfg.Mix, ShouldResemble, DefaultMix())
	})

	Convey("Given an unknown mode", t, func() {
		cfg := &Config{Mode: "bulk"}
		So(errors.Is(cfg.normalize(), ErrInvalidConfig), ShouldBeTrue)
	})
}

// fakeServer records /samples, answers /summary from what it recorded and
// scores /score with a real scorer.
type fakeServer struct {
	mu       sync.Mutex
	recorded map[string]bool
	baseline int
	pushback map[string]bool
	lose     int
	scorer   *posture.Scorer
	healthy  bool
}

func (f *fakeServer) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func newFakeServer(t *testing.T) *fakeServer {
	s, err := posture.NewScorer()
	if err != nil {
		t.Fatal(err)
	}
	return &fakeServer{recorded: map[string]bool{}, pushback: map[string]bool{}, scorer: s, healthy: true, baseline: 7}
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		f.mu.Lock()
		healthy := f.healthy
		f.mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	case "/samples":
		var s Sample
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		// Every tenth id is pushed back once.
		if len(s.SampleID) > 0 && s.SampleID[len(s.SampleID)-1] == '0' && !f.pushback[s.SampleID] {
			f.pushback[s.SampleID] = true
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if f.recorded[s.SampleID] {
			_ = json.NewEncoder(w).Encode(AckResponse{Status: "duplicate", SampleID: s.SampleID, Duplicate: true})
			return
		}
		f.recorded[s.SampleID] = true
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(AckResponse{Status: "accepted", SampleID: s.SampleID})
	case "/summary":
		if r.URL.Query().Get("window") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		n := len(f.recorded) + f.baseline
		if len(f.recorded) > 0 {
			n -= f.lose
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(SummaryResponse{Count: n})
	case "/score":
		var body struct {
			Landmarks *pose.Set `json:"landmarks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m, err := f.scorer.Score(body.Landmarks)
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_ = json.NewEncoder(w).Encode(m)
	default:
		http.NotFound(w, r)
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running server", t, func() {
		fake := newFakeServer(t)
		srv := httptest.NewServer(fake)
		Reset(srv.Close)
		out := filepath.Join(t.TempDir(), "out", "samples.json")

		cfg := &Config{
			BaseURL:       srv.URL,
			NumSamples:    150,
			Workers:       4,
			Seed:          3,
			RunID:         "run",
			OutputFile:    out,
			SettleTimeout: time.Second,
		}

		Convey("When samples are replayed", func() {
			stats, err := Run(context.Background(), cfg)
			So(err, ShouldBeNil)

			Convey("Then every sample is accepted after backpressure retries", func() {
				So(stats.Accepted, ShouldEqual, int64(150))
				So(stats.Failed, ShouldEqual, int64(0))
				So(stats.Retried, ShouldEqual, int64(15))
				So(stats.BaselineCount, ShouldEqual, 7)
				So(stats.FinalCount, ShouldEqual, 157)
			})

			Convey("Then the samples are written with their profiles", func() {
				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var saved []map[string]any
				So(json.Unmarshal(data, &saved), ShouldBeNil)
				So(saved, ShouldHaveLength, 150)
				So(saved[0]["sample_id"], ShouldEqual, "run-000000")
				So(saved[0]["profile"], ShouldNotBeEmpty)
			})

			Convey("Then replaying the same run reports duplicates", func() {
				again, err := Run(context.Background(), cfg)
				So(err, ShouldBeNil)
				So(again.Duplicate, ShouldEqual, int64(150))
				So(again.Accepted, ShouldEqual, int64(0))
			})
		})

		Convey("When samples are scored", func() {
			cfg.Mode = ModeScore
			stats, err := Run(context.Background(), cfg)
			So(err, ShouldBeNil)
			So(stats.Accepted, ShouldEqual, int64(150))
			So(stats.Mismatched, ShouldEqual, int64(0))
		})

		Convey("When the server is unhealthy", func() {
			fake.set(func() { fake.healthy = false })
			_, err := Run(context.Background(), cfg)
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})

		Convey("When the server loses samples", func() {
			fake.set(func() { fake.lose = 5 })
			stats, err := Run(context.Background(), cfg)
			So(errors.Is(err, ErrCountMismatch), ShouldBeTrue)
			So(stats, ShouldNotBeNil)
		})
	})
}
