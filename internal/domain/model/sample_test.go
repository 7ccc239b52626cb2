package model_test

import (
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	model "github.com/okian/sitstraight/internal/domain/model"
	"github.com/okian/sitstraight/internal/domain/pose"
)

func TestSample(t *testing.T) {
	convey.Convey("Given a Sample struct", t, func() {
		now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

		convey.Convey("When the client supplied a capture time", func() {
			ts := now.Add(-time.Minute)
			s := model.Sample{
				SampleID:  "01HZX",
				Source:    model.SourceSamples,
				TS:        ts,
				Landmarks: pose.FromSlice(make([]pose.Landmark, pose.NumLandmarks)),
			}

			convey.Convey("Then it is used as is", func() {
				convey.So(s.CapturedAt(now), convey.ShouldEqual, ts)
				convey.So(s.Landmarks.Len(), convey.ShouldEqual, pose.NumLandmarks)
			})
		})

		convey.Convey("When the capture time is missing", func() {
			s := model.Sample{SampleID: "01HZY"}

			convey.Convey("Then the fallback is used and nobody is in view", func() {
				convey.So(s.CapturedAt(now), convey.ShouldEqual, now)
				convey.So(s.Landmarks, convey.ShouldBeNil)
			})
		})
	})
}
