package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"scoreboard/core"
)

func TestManagerRecording(t *testing.T) {
	Convey("Given a metrics manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry), WithRuntimeCollectors(false))

		Convey("When score_submitted events arrive", func() {
			m.HandleEvent(context.Background(), core.NewScoreSubmitted("alice", 10, true, "redis"))
			m.HandleEvent(context.Background(), core.NewScoreSubmitted("alice", 5, false, "redis"))
			m.HandleEvent(context.Background(), core.NewScoreSubmitted("bob", 1, true, "redis"))

			Convey("Then submissions are counted per outcome", func() {
				So(testutil.ToFloat64(m.submissions.WithLabelValues("redis", "updated")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.submissions.WithLabelValues("redis", "unchanged")), ShouldEqual, 1)
			})
		})

		Convey("When a failover event arrives", func() {
			m.SetFallbackActive(false)
			m.HandleEvent(context.Background(), core.NewBackendFailover("redis", "dial refused"))

			Convey("Then the failover is counted and the gauge flips", func() {
				So(testutil.ToFloat64(m.failovers.WithLabelValues("redis")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.fallbackActive), ShouldEqual, 1)
			})
		})

		Convey("When backend calls are observed", func() {
			m.ObserveBackend("top_k", "memory", 2*time.Millisecond, nil)
			m.ObserveBackend("upsert", "redis", time.Millisecond, fmt.Errorf("zadd: %w", core.ErrBackendOperation))

			Convey("Then reads and errors are counted", func() {
				So(testutil.ToFloat64(m.reads.WithLabelValues("memory")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.backendErrors.WithLabelValues("upsert", "operation")), ShouldEqual, 1)
				So(testutil.CollectAndCount(m.backendLatency), ShouldEqual, 2)
			})
		})

		Convey("When HTTP requests and dropped events are recorded", func() {
			m.RecordHTTPRequest("score", http.MethodPost, http.StatusOK, 3*time.Millisecond)
			m.RecordHTTPRequest("score", http.MethodPost, http.StatusBadRequest, time.Millisecond)
			m.RecordEventDropped(core.Event{})

			Convey("Then they show up under their labels", func() {
				So(testutil.ToFloat64(m.httpRequests.WithLabelValues("score", "POST", "200")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.httpRequests.WithLabelValues("score", "POST", "400")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.eventsDropped), ShouldEqual, 1)
			})
		})

		Convey("When the handler is scraped", func() {
			m.RecordHTTPRequest("leaderboard", http.MethodGet, http.StatusOK, time.Millisecond)
			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			body, _ := io.ReadAll(rec.Body)

			Convey("Then the exposition contains the namespaced metric", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, "scoreboard_leaderboard_http_requests_total")
			})
		})
	})
}

func TestDisabledManager(t *testing.T) {
	Convey("Given a disabled or nil manager", t, func() {
		disabled := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(prometheus.NewRegistry()))
		var nilManager *Manager

		Convey("Then every call is a no-op", func() {
			for _, m := range []*Manager{disabled, nilManager} {
				So(func() {
					m.HandleEvent(context.Background(), core.NewScoreSubmitted("a", 1, true, "memory"))
					m.ObserveBackend("upsert", "memory", time.Millisecond, nil)
					m.RecordHTTPRequest("score", "POST", 200, time.Millisecond)
					m.RecordEventDropped(core.Event{})
					m.SetFallbackActive(true)
				}, ShouldNotPanic)
			}
		})

		Convey("Then the handler answers 404", func() {
			rec := httptest.NewRecorder()
			disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestErrorKind(t *testing.T) {
	Convey("ErrorKind follows the error taxonomy", t, func() {
		So(ErrorKind(nil), ShouldEqual, "none")
		So(ErrorKind(fmt.Errorf("x: %w", core.ErrInvalidInput)), ShouldEqual, "invalid_input")
		So(ErrorKind(fmt.Errorf("x: %w", core.ErrBackendConnectivity)), ShouldEqual, "connectivity")
		So(ErrorKind(fmt.Errorf("x: %w", core.ErrBackendOperation)), ShouldEqual, "operation")
		So(ErrorKind(context.DeadlineExceeded), ShouldEqual, "canceled")
		So(ErrorKind(errors.New("boom")), ShouldEqual, "unknown")
	})
}
