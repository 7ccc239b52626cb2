package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a registered dashboard", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", path, http.NoBody))
			return w
		}

		Convey("Then / serves the dashboard page", func() {
			w := get("/")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Header().Get("Cache-Control"), ShouldEqual, "no-cache")
			So(w.Body.String(), ShouldContainSubstring, "/app.js")
		})

		Convey("Then the script subscribes to the posture stream", func() {
			w := get("/app.js")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"/ws"`)
			So(w.Body.String(), ShouldContainSubstring, `"posture"`)
		})

		Convey("Then /dashboard redirects to the root", func() {
			w := get("/dashboard")
			So(w.Code, ShouldEqual, http.StatusFound)
			So(w.Header().Get("Location"), ShouldEqual, "/")
		})

		Convey("Then unknown assets are not found", func() {
			So(get("/missing.png").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSiteHandlerWithNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		So(func() { Register(context.Background(), nil) }, ShouldPanic)
	})
}
