package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/adapters/http/api"
	repository "github.com/okian/pitwall/internal/adapters/repository"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/types"
)

type mockPipeline struct {
	status    types.Status
	table     []types.RatingEntry
	compare   []types.ModelComparison
	notReady  bool
	lastLimit int
}

func (m *mockPipeline) Status() types.Status { return m.status }

func (m *mockPipeline) Rankings(_ context.Context, limit int) ([]types.RatingEntry, error) {
	if m.notReady {
		return nil, fmt.Errorf("%w: elo has not run", service.ErrStageNotReady)
	}
	m.lastLimit = limit
	if limit > len(m.table) {
		return m.table, nil
	}
	return m.table[:limit], nil
}

func (m *mockPipeline) Rank(_ context.Context, driver string) (types.RatingEntry, error) {
	for _, e := range m.table {
		if e.DriverID == driver {
			return e, nil
		}
	}
	return types.RatingEntry{}, fmt.Errorf("%s: %w", driver, repository.ErrNotFound)
}

func (m *mockPipeline) CompareModels() []types.ModelComparison { return m.compare }

func (m *mockPipeline) HeadToHead(a, b string) (types.HeadToHead, error) {
	if m.notReady {
		return types.HeadToHead{}, service.ErrStageNotReady
	}
	return types.HeadToHead{DriverA: a, DriverB: b, ProbA: 0.75, ProbB: 0.25, RatingA: 1700, RatingB: 1509}, nil
}

var _ api.Dependencies = (*service.Controller)(nil)

func newMux(deps api.Dependencies, maxLimit int) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, maxLimit).Register(context.Background(), mux)
	return mux
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer(t *testing.T) {
	Convey("Given an API over a trained pipeline", t, func() {
		deps := &mockPipeline{
			status: types.Status{State: "complete", RunID: "r1", DataLoaded: true, ModelsTrained: []string{"ELO"}, NRaces: 4},
			table: []types.RatingEntry{
				{Rank: 1, DriverID: "VER", Rating: 1700},
				{Rank: 2, DriverID: "LEC", Rating: 1600},
				{Rank: 3, DriverID: "NOR", Rating: 1550},
			},
			compare: []types.ModelComparison{{Model: "ELO", Metrics: map[string]float64{"mae": 2.5}}},
		}
		mux := newMux(deps, 2)

		Convey("When GET /healthz", func() {
			w := get(mux, "/healthz")

			Convey("Then metrics are served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When GET /status", func() {
			w := get(mux, "/status")

			Convey("Then the snapshot is returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				var st types.Status
				So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
				So(st.State, ShouldEqual, "complete")
				So(st.NRaces, ShouldEqual, 4)
			})
		})

		Convey("When GET /rankings with a limit", func() {
			w := get(mux, "/rankings?limit=1")

			Convey("Then that many entries are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out []types.RatingEntry
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out, ShouldHaveLength, 1)
				So(out[0].DriverID, ShouldEqual, "VER")
			})
		})

		Convey("When GET /rankings without a limit", func() {
			w := get(mux, "/rankings")

			Convey("Then the maximum is used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 2)
			})
		})

		Convey("When the limit is invalid or too large", func() {
			for _, q := range []string{"0", "-1", "abc"} {
				w := get(mux, "/rankings?limit="+q)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			w := get(mux, "/rankings?limit=3")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "limit_exceeded")
		})

		Convey("When GET /rank/{driver}", func() {
			Convey("Then a rated driver is found", func() {
				w := get(mux, "/rank/LEC")
				So(w.Code, ShouldEqual, http.StatusOK)
				var e types.RatingEntry
				So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
				So(e.Rank, ShouldEqual, 2)
			})

			Convey("Then an unknown driver is 404", func() {
				w := get(mux, "/rank/ALO")
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, "not_found")
			})

			Convey("Then a malformed path is 400", func() {
				So(get(mux, "/rank/").Code, ShouldEqual, http.StatusBadRequest)
				So(get(mux, "/rank/a/b").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When GET /models/compare", func() {
			w := get(mux, "/models/compare")

			Convey("Then rows are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"mae":2.5`)
			})
		})

		Convey("When GET /head-to-head", func() {
			Convey("Then both drivers are required", func() {
				So(get(mux, "/head-to-head?a=VER").Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then probabilities are returned", func() {
				w := get(mux, "/head-to-head?a=VER&b=LEC")
				So(w.Code, ShouldEqual, http.StatusOK)
				var h types.HeadToHead
				So(json.Unmarshal(w.Body.Bytes(), &h), ShouldBeNil)
				So(h.ProbA, ShouldEqual, 0.75)
				So(h.DriverB, ShouldEqual, "LEC")
			})
		})

		Convey("When a write method is used", func() {
			for _, path := range []string{"/status", "/rankings", "/rank/VER", "/models/compare", "/head-to-head?a=x&b=y"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}")))
				So(w.Code, ShouldEqual, http.StatusNotFound)
			}
		})
	})

	Convey("Given an API before the rating model is trained", t, func() {
		mux := newMux(&mockPipeline{notReady: true}, 0)

		Convey("Then rating reads are unavailable", func() {
			w := get(mux, "/rankings")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(w.Body.String(), ShouldContainSubstring, "not_ready")
			So(get(mux, "/head-to-head?a=x&b=y").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Then an empty comparison is still a list", func() {
			w := get(mux, "/models/compare")
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})
}
