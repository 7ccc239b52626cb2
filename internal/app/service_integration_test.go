package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sitstraight/internal/adapters/http/api"
	"github.com/okian/sitstraight/internal/adapters/ws"
	service "github.com/okian/sitstraight/internal/app"
	"github.com/okian/sitstraight/internal/domain/posture"
)

// landmarksJSON is the upright pose in the named wire form.
const landmarksJSON = `{
	"left_shoulder":  {"x": 0.6,  "y": 0.4},
	"right_shoulder": {"x": 0.4,  "y": 0.4},
	"left_ear":       {"x": 0.6,  "y": 0.2},
	"right_ear":      {"x": 0.4,  "y": 0.2},
	"left_hip":       {"x": 0.61, "y": 0.75},
	"right_hip":      {"x": 0.41, "y": 0.75}
}`

func startStack(t *testing.T, svc *service.Service) *httptest.Server {
	t.Helper()
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.WithStream(svc.Stream())).Register(context.Background(), mux)
	return httptest.NewServer(api.RequestIDMiddleware(mux))
}

func post(url, body string) (*http.Response, error) {
	return http.Post(url, "application/json", bytes.NewBufferString(body))
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given the service behind the HTTP API", t, func() {
		cfg := testConfig()
		cfg.WS.IntervalMS = 50
		svc := service.New(service.WithConfig(cfg))
		srv := startStack(t, svc)
		defer svc.Stop()
		defer srv.Close()

		Convey("When samples are posted for async scoring", func() {
			for i := 0; i < 20; i++ {
				body := fmt.Sprintf(`{"sample_id":"edge-%02d","landmarks":%s}`, i, landmarksJSON)
				resp, err := post(srv.URL+"/samples", body)
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
				resp.Body.Close()
			}

			Convey("Then a retried id is acknowledged as a duplicate", func() {
				resp, err := post(srv.URL+"/samples", fmt.Sprintf(`{"sample_id":"edge-03","landmarks":%s}`, landmarksJSON))
				So(err, ShouldBeNil)
				defer resp.Body.Close()
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})

			Convey("Then the history and summary see every sample once", func() {
				var hist struct {
					Count int `json:"count"`
				}
				So(eventually(func() bool {
					resp, err := http.Get(srv.URL + "/history")
					if err != nil {
						return false
					}
					defer resp.Body.Close()
					_ = json.NewDecoder(resp.Body).Decode(&hist)
					return hist.Count == 20
				}), ShouldBeTrue)

				resp, err := http.Get(srv.URL + "/summary?window=1h")
				So(err, ShouldBeNil)
				defer resp.Body.Close()
				var sum struct {
					Count        int     `json:"count"`
					AlignedRatio float64 `json:"aligned_ratio"`
				}
				So(json.NewDecoder(resp.Body).Decode(&sum), ShouldBeNil)
				So(sum.Count, ShouldEqual, 20)
				So(sum.AlignedRatio, ShouldEqual, 1.0)
			})
		})

		Convey("When a dashboard is connected to the stream", func() {
			conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			resp, err := post(srv.URL+"/score", `{"landmarks":`+landmarksJSON+`}`)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get(api.HeaderRequestID), ShouldNotBeEmpty)
			resp.Body.Close()

			Convey("Then the scored frame is pushed to it", func() {
				_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
				var msg ws.Message
				So(conn.ReadJSON(&msg), ShouldBeNil)
				So(msg.Event, ShouldEqual, ws.EventPosture)
				So(msg.Data.State, ShouldEqual, posture.StateAligned)
			})

			Convey("Then /live serves the same frame", func() {
				resp, err := http.Get(srv.URL + "/live")
				So(err, ShouldBeNil)
				defer resp.Body.Close()
				var m posture.Metrics
				So(json.NewDecoder(resp.Body).Decode(&m), ShouldBeNil)
				So(m.Score, ShouldBeGreaterThanOrEqualTo, 80)
			})
		})

		Convey("When stats are requested", func() {
			resp, err := http.Get(srv.URL + "/stats")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			var stats map[string]interface{}
			So(json.NewDecoder(resp.Body).Decode(&stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
		})
	})
}
