package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/adapters/provider"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/internal/featurestore"
	"github.com/okian/pitwall/internal/ingest"
	"github.com/okian/pitwall/internal/models"
)

// tick returns a clock that advances one second per call so repeated saves
// get distinct versions.
func tick() func() time.Time {
	t := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newController(t *testing.T, opts ...service.Option) (*service.Controller, string) {
	src := provider.NewSynthetic(provider.WithRounds(5), provider.WithDrivers(6), provider.WithSprintEvery(0))
	base := t.TempDir()
	store, err := featurestore.NewStore(base, featurestore.WithClock(tick()))
	So(err, ShouldBeNil)
	all := append([]service.Option{service.WithYears(2022, 2023, 2024)}, opts...)
	return service.New(ingest.NewLoader(src), store, all...), base
}

func TestControllerPipeline(t *testing.T) {
	Convey("Given a controller over three synthetic seasons", t, func() {
		ctx := context.Background()
		c, base := newController(t)

		Convey("Then it starts idle", func() {
			st := c.Status()
			So(st.State, ShouldEqual, "idle")
			So(st.DataLoaded, ShouldBeFalse)
			So(st.ModelsTrained, ShouldBeEmpty)
			So(st.Stages, ShouldBeEmpty)
		})

		Convey("When the complete pipeline runs", func() {
			ok := c.RunCompletePipeline(ctx)
			So(c.Err(), ShouldBeNil)
			So(ok, ShouldBeTrue)
			st := c.Status()

			Convey("Then every stage is recorded in order", func() {
				So(st.State, ShouldEqual, "complete")
				So(st.RunID, ShouldNotBeEmpty)
				So(st.Stages, ShouldHaveLength, len(service.States))
				for i, s := range st.Stages {
					So(s.State, ShouldEqual, string(service.States[i]))
					So(s.OK, ShouldBeTrue)
				}
			})

			Convey("Then the status reflects the outputs", func() {
				So(st.DataLoaded, ShouldBeTrue)
				So(st.FeaturesCreated, ShouldBeTrue)
				So(st.NRows, ShouldEqual, 90)
				So(st.NRaces, ShouldEqual, 15)
				So(st.NFeatures, ShouldBeGreaterThan, 0)
				So(st.ModelsTrained, ShouldResemble, []string{models.BaselineName, models.RatingModelName, models.EnsembleName})
				So(strings.HasPrefix(st.FeatureSetPath, filepath.Join(base, "processed")), ShouldBeTrue)
			})

			Convey("Then the rating model is saved next to its feature set", func() {
				stem := strings.TrimSuffix(filepath.Base(st.FeatureSetPath), ".parquet")
				So(st.ModelPath, ShouldEqual, filepath.Join(base, "models", stem+"_elo.json"))

				loaded, err := models.LoadRatingModel(ctx, st.ModelPath)
				So(err, ShouldBeNil)
				all, err := c.Rankings(ctx, 0)
				So(err, ShouldBeNil)
				ratings := loaded.Ratings()
				So(ratings, ShouldHaveLength, len(all))
				for _, e := range all {
					So(ratings[e.DriverID], ShouldAlmostEqual, e.Rating, 1e-6)
				}
			})

			Convey("Then rankings come from the rating model", func() {
				top, err := c.Rankings(ctx, 3)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 3)
				So(top[0].Rank, ShouldEqual, 1)
				So(top[0].Rating, ShouldBeGreaterThanOrEqualTo, top[1].Rating)

				all, err := c.Rankings(ctx, 0)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 6)

				e, err := c.Rank(ctx, top[0].DriverID)
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)

				_, err = c.Rank(ctx, "NOBODY")
				So(err, ShouldNotBeNil)
			})

			Convey("Then the faster driver is favoured head to head", func() {
				h, err := c.HeadToHead("D01", "D06")
				So(err, ShouldBeNil)
				So(h.ProbA+h.ProbB, ShouldAlmostEqual, 1.0, 1e-12)
				So(h.ProbA, ShouldBeGreaterThan, 0.5)
			})

			Convey("Then every model is compared on the test split", func() {
				rows := c.CompareModels()
				So(rows, ShouldHaveLength, 3)
				So(rows[0].Metrics["mae"], ShouldBeLessThanOrEqualTo, rows[1].Metrics["mae"])
				So(rows[1].Metrics["mae"], ShouldBeLessThanOrEqualTo, rows[2].Metrics["mae"])
				So(rows[0].Metrics["n_samples"], ShouldEqual, 12)
			})

			Convey("Then test predictions carry their identifiers", func() {
				preds, err := c.Predictions(ctx, models.RatingModelName)
				So(err, ShouldBeNil)
				So(preds, ShouldHaveLength, 12)
				for _, p := range preds {
					So(p.Year, ShouldEqual, 2024)
					So(p.Round, ShouldBeIn, []int{4, 5})
					So(p.Driver, ShouldStartWith, "D")
					So(p.Actual, ShouldBeBetweenOrEqual, 1.0, 6.0)
				}
			})

			Convey("Then unknown models are reported", func() {
				_, err := c.Model("nope")
				So(errors.Is(err, service.ErrUnknownModel), ShouldBeTrue)
				_, err = c.Predictions(ctx, "nope")
				So(errors.Is(err, service.ErrUnknownModel), ShouldBeTrue)
			})

			Convey("And a single stage is run again", func() {
				So(c.RunBaseline(ctx), ShouldBeTrue)

				Convey("Then it is appended to the history", func() {
					st := c.Status()
					So(st.State, ShouldEqual, "baseline")
					So(st.Stages, ShouldHaveLength, len(service.States)+1)
				})
			})

			Convey("And a rerun of the rating stage fails", func() {
				before, err := c.Rankings(ctx, 0)
				So(err, ShouldBeNil)
				cancelled, cancel := context.WithCancel(ctx)
				cancel()
				So(c.RunElo(cancelled), ShouldBeFalse)

				Convey("Then the published rankings are those of the last good run", func() {
					So(errors.Is(c.Err(), context.Canceled), ShouldBeTrue)
					after, err := c.Rankings(ctx, 0)
					So(err, ShouldBeNil)
					So(after, ShouldResemble, before)
					So(c.Status().ModelsTrained, ShouldContain, models.RatingModelName)
				})
			})

			Convey("And the pipeline runs again", func() {
				first := st.RunID
				So(c.RunCompletePipeline(ctx), ShouldBeTrue)

				Convey("Then the run gets a new id and a fresh history", func() {
					st := c.Status()
					So(st.RunID, ShouldNotEqual, first)
					So(st.Stages, ShouldHaveLength, len(service.States))
				})
			})
		})
	})
}

func TestControllerStageOrder(t *testing.T) {
	Convey("Given a fresh controller", t, func() {
		ctx := context.Background()
		c, _ := newController(t)

		Convey("When a stage runs before its upstream stage", func() {
			ok := c.RunEngineer(ctx)

			Convey("Then it fails without side effects", func() {
				So(ok, ShouldBeFalse)
				So(errors.Is(c.Err(), service.ErrStageNotReady), ShouldBeTrue)
				st := c.Status()
				So(st.State, ShouldEqual, "engineer")
				So(st.FeaturesCreated, ShouldBeFalse)
				So(st.Stages, ShouldHaveLength, 1)
				So(st.Stages[0].OK, ShouldBeFalse)
				So(st.Stages[0].Error, ShouldNotBeEmpty)
			})
		})

		Convey("When models or the evaluator run before the store", func() {
			So(c.RunElo(ctx), ShouldBeFalse)
			So(errors.Is(c.Err(), service.ErrStageNotReady), ShouldBeTrue)
			So(c.RunEvaluate(ctx), ShouldBeFalse)
			So(errors.Is(c.Err(), service.ErrStageNotReady), ShouldBeTrue)
		})

		Convey("When rankings are read before training", func() {
			_, err := c.Rankings(ctx, 5)
			So(errors.Is(err, service.ErrStageNotReady), ShouldBeTrue)
			_, err = c.HeadToHead("D01", "D02")
			So(errors.Is(err, service.ErrStageNotReady), ShouldBeTrue)
		})

		Convey("When stages are run one at a time", func() {
			So(c.RunIngest(ctx), ShouldBeTrue)
			So(c.RunEngineer(ctx), ShouldBeTrue)
			So(c.RunStore(ctx), ShouldBeTrue)
			So(c.RunElo(ctx), ShouldBeTrue)
			So(c.RunEvaluate(ctx), ShouldBeTrue)

			Convey("Then only the trained model is evaluated", func() {
				rows := c.CompareModels()
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Model, ShouldEqual, models.RatingModelName)
			})
		})
	})
}

func TestControllerFailures(t *testing.T) {
	Convey("Given a controller with no seasons", t, func() {
		ctx := context.Background()
		src := provider.NewSynthetic()
		store, err := featurestore.NewStore(t.TempDir())
		So(err, ShouldBeNil)
		c := service.New(ingest.NewLoader(src), store)

		Convey("Then the pipeline stops at ingestion", func() {
			So(c.RunCompletePipeline(ctx), ShouldBeFalse)
			So(errors.Is(c.Err(), ingest.ErrNoSeasons), ShouldBeTrue)
			st := c.Status()
			So(st.State, ShouldEqual, "ingest")
			So(st.DataLoaded, ShouldBeFalse)
			So(st.Stages, ShouldHaveLength, 1)
		})
	})

	Convey("Given ensemble weights that do not sum to one", t, func() {
		ctx := context.Background()
		c, _ := newController(t, service.WithEnsembleWeights([]float64{0.6, 0.3}))

		Convey("Then the pipeline stops at the ensemble and keeps earlier models", func() {
			So(c.RunCompletePipeline(ctx), ShouldBeFalse)
			So(errors.Is(c.Err(), models.ErrInvalidEnsembleWeights), ShouldBeTrue)
			st := c.Status()
			So(st.State, ShouldEqual, "ensemble")
			So(st.ModelsTrained, ShouldResemble, []string{models.BaselineName, models.RatingModelName})
		})
	})
}

// shrinking serves the wrapped provider but reports dropped seasons as
// unavailable.
type shrinking struct {
	ingest.Provider
	mu   sync.Mutex
	drop map[int]bool
}

func (s *shrinking) Drop(year int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop[year] = true
}

func (s *shrinking) Schedule(ctx context.Context, year int) ([]race.Event, error) {
	s.mu.Lock()
	dropped := s.drop[year]
	s.mu.Unlock()
	if dropped {
		return nil, fmt.Errorf("%w: season %d withdrawn", race.ErrDataUnavailable, year)
	}
	return s.Provider.Schedule(ctx, year)
}

func TestControllerNewSplit(t *testing.T) {
	Convey("Given a completed run", t, func() {
		ctx := context.Background()
		src := &shrinking{
			Provider: provider.NewSynthetic(provider.WithRounds(5), provider.WithDrivers(6), provider.WithSprintEvery(0)),
			drop:     map[int]bool{},
		}
		store, err := featurestore.NewStore(t.TempDir(), featurestore.WithClock(tick()))
		So(err, ShouldBeNil)
		c := service.New(ingest.NewLoader(src), store, service.WithYears(2022, 2023, 2024))
		So(c.RunCompletePipeline(ctx), ShouldBeTrue)
		old, err := c.Predictions(ctx, models.RatingModelName)
		So(err, ShouldBeNil)
		So(old, ShouldHaveLength, 12)

		Convey("When the data shrinks and a new split is stored", func() {
			src.Drop(2024)
			So(c.RunIngest(ctx), ShouldBeTrue)
			So(c.RunEngineer(ctx), ShouldBeTrue)
			So(c.RunStore(ctx), ShouldBeTrue)

			Convey("Then models trained on the old split are withdrawn", func() {
				st := c.Status()
				So(st.ModelsTrained, ShouldBeEmpty)
				So(st.ModelPath, ShouldBeEmpty)
				So(st.NRaces, ShouldEqual, 10)
				So(c.CompareModels(), ShouldBeEmpty)

				_, err := c.Predictions(ctx, models.RatingModelName)
				So(errors.Is(err, service.ErrUnknownModel), ShouldBeTrue)
				_, err = c.Rankings(ctx, 3)
				So(errors.Is(err, service.ErrStageNotReady), ShouldBeTrue)
			})

			Convey("Then retraining predicts the new test split", func() {
				So(c.RunElo(ctx), ShouldBeTrue)
				preds, err := c.Predictions(ctx, models.RatingModelName)
				So(err, ShouldBeNil)
				So(preds, ShouldNotBeEmpty)
				So(len(preds), ShouldBeLessThan, len(old))
				for _, p := range preds {
					So(p.Year, ShouldEqual, 2023)
				}
			})
		})
	})
}

func TestControllerRealClock(t *testing.T) {
	Convey("Given a store stamped by the wall clock", t, func() {
		ctx := context.Background()
		src := provider.NewSynthetic(provider.WithRounds(5), provider.WithDrivers(6), provider.WithSprintEvery(0))
		store, err := featurestore.NewStore(t.TempDir())
		So(err, ShouldBeNil)
		c := service.New(ingest.NewLoader(src), store, service.WithYears(2023, 2024))

		Convey("When the pipeline and the store stage run back to back", func() {
			So(c.RunCompletePipeline(ctx), ShouldBeTrue)
			first := c.Status().FeatureSetPath
			So(c.RunStore(ctx), ShouldBeTrue)
			second := c.Status().FeatureSetPath
			So(c.RunCompletePipeline(ctx), ShouldBeTrue)
			third := c.Status().FeatureSetPath

			Convey("Then every save gets its own version and the last one is latest", func() {
				So(c.Err(), ShouldBeNil)
				So(second, ShouldNotEqual, first)
				So(third, ShouldNotEqual, second)

				entries, err := store.List(ctx)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 3)
				So(filepath.Join(store.Base(), "processed", entries[0].Filename), ShouldEqual, third)

				_, err = os.Stat(c.Status().ModelPath)
				So(err, ShouldBeNil)
			})
		})
	})
}
