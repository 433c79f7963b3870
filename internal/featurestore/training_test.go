package featurestore_test

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/domain/table"
	"github.com/okian/pitwall/internal/featurestore"
)

var (
	sourceRounds  = []float64{3, 1, 5, 2, 4, 1, 2, 3, 4, 5}
	sourceDrivers = []string{"VER", "VER", "VER", "VER", "VER", "LEC", "LEC", "LEC", "LEC", "LEC"}
)

// five races of two drivers, rows shuffled
func raceFrame() *table.Frame {
	rounds := append([]float64(nil), sourceRounds...)
	drivers := append([]string(nil), sourceDrivers...)
	n := len(rounds)
	years, events, teams, numbers := make([]float64, n), make([]string, n), make([]string, n), make([]string, n)
	pos, pts, form, grid := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range rounds {
		years[i] = 2024
		events[i] = "GP" + string(rune('A'+int(rounds[i])))
		teams[i] = "T-" + drivers[i]
		numbers[i] = "1"
		pos[i] = float64(i%2 + 1)
		pts[i] = 25
		form[i] = float64(i)
		grid[i] = float64(i + 1)
	}
	f := table.New(n)
	f, _ = f.WithFloats("year", years)
	f, _ = f.WithFloats("round", rounds)
	f, _ = f.WithStrings("event_name", events)
	f, _ = f.WithStrings("driver", drivers)
	f, _ = f.WithStrings("team", teams)
	f, _ = f.WithStrings("driver_number", numbers)
	f, _ = f.WithFloats("points", pts)
	f, _ = f.WithFloats("avg_position_last3", form)
	f, _ = f.WithFloats("grid_position", grid)
	f, _ = f.WithFloats("position", pos)
	return f
}

func opts(test float64) featurestore.TrainingOptions {
	o := featurestore.DefaultTrainingOptions()
	o.TestSize = test
	return o
}

func TestPrepareTrainingData(t *testing.T) {
	Convey("Given five races of two drivers", t, func() {
		f := raceFrame()

		Convey("When splitting 80/20", func() {
			s, err := featurestore.PrepareTrainingData(f, opts(0.2))
			So(err, ShouldBeNil)

			Convey("Then the split is chronological and on a race boundary", func() {
				So(s.XTrain.Len(), ShouldEqual, 8)
				So(s.XTest.Len(), ShouldEqual, 2)
				So(s.YTrain, ShouldHaveLength, 8)
				So(s.YTest, ShouldHaveLength, 2)
				for i := 0; i < s.MetaTest.Len(); i++ {
					So(s.MetaTest.Float("round", i), ShouldEqual, 5)
				}
				So(s.MetaTrain.Float("round", 0), ShouldEqual, 1)
			})

			Convey("Then identifiers never become features", func() {
				So(s.FeatureColumns, ShouldResemble, []string{"avg_position_last3", "grid_position"})
				So(s.XTrain.Columns(), ShouldResemble, s.FeatureColumns)
				So(s.MetaTrain.Columns(), ShouldResemble, featurestore.DefaultMetadataColumns)
			})

			Convey("Then X and meta carry the same keys", func() {
				So(s.XTrain.Keys(), ShouldResemble, s.MetaTrain.Keys())
				So(s.XTest.Keys(), ShouldResemble, s.MetaTest.Keys())
				So(s.XTest.Keys(), ShouldResemble, []int{8, 9})
			})
		})

		Convey("When the boundary falls inside a race", func() {
			s, err := featurestore.PrepareTrainingData(f, opts(0.25))
			So(err, ShouldBeNil)
			So(s.XTrain.Len(), ShouldEqual, 8)

			Convey("And moving forward would empty the test set", func() {
				s, err := featurestore.PrepareTrainingData(f, opts(0.1))
				So(err, ShouldBeNil)
				So(s.XTrain.Len(), ShouldEqual, 8)
				So(s.XTest.Len(), ShouldEqual, 2)
			})
		})

		Convey("When one row has a missing feature", func() {
			vals, _ := f.Floats("avg_position_last3")
			vals[0] = math.NaN()
			g, _ := f.WithFloats("avg_position_last3", vals)
			s, err := featurestore.PrepareTrainingData(g, opts(0.2))
			So(err, ShouldBeNil)

			Convey("Then the row is dropped from X, y and meta together", func() {
				So(s.XTrain.Len()+s.XTest.Len(), ShouldEqual, 9)
				So(len(s.YTrain)+len(s.YTest), ShouldEqual, 9)
				So(s.XTrain.Keys(), ShouldResemble, s.MetaTrain.Keys())
				So(s.XTest.Keys(), ShouldResemble, s.MetaTest.Keys())
			})
		})

		Convey("When options are invalid", func() {
			_, err := featurestore.PrepareTrainingData(f, opts(0))
			So(errors.Is(err, featurestore.ErrInvalidTestSize), ShouldBeTrue)
			_, err = featurestore.PrepareTrainingData(f, opts(1))
			So(errors.Is(err, featurestore.ErrInvalidTestSize), ShouldBeTrue)

			o := opts(0.2)
			o.Target = "lap_time"
			_, err = featurestore.PrepareTrainingData(f, o)
			So(errors.Is(err, featurestore.ErrColumnNotFound), ShouldBeTrue)
		})

		Convey("When extra columns are excluded", func() {
			o := opts(0.2)
			o.ExcludeColumns = []string{"grid_position"}
			s, err := featurestore.PrepareTrainingData(f, o)
			So(err, ShouldBeNil)
			So(s.FeatureColumns, ShouldResemble, []string{"avg_position_last3"})
		})
	})

	Convey("Given a single race", t, func() {
		f := raceFrame().Take([]int{1, 5})

		Convey("Then a boundary that cannot move keeps its place", func() {
			s, err := featurestore.PrepareTrainingData(f, opts(0.5))
			So(err, ShouldBeNil)
			So(s.XTrain.Len(), ShouldEqual, 1)
			So(s.XTest.Len(), ShouldEqual, 1)
		})

		Convey("Then an empty training split is an error", func() {
			_, err := featurestore.PrepareTrainingData(f.Take([]int{0}), opts(0.2))
			So(errors.Is(err, featurestore.ErrEmptyTrainingData), ShouldBeTrue)
		})
	})
}

func TestPrepareTrainingDataAlignment(t *testing.T) {
	Convey("Given the same races with and without an incomplete row", t, func() {
		full := raceFrame()
		vals, _ := full.Floats("avg_position_last3")
		vals[0] = math.NaN()
		gappy, _ := full.WithFloats("avg_position_last3", vals)
		frames := map[string]*table.Frame{"complete": full, "with missing": gappy}
		rows := map[string]int{"complete": 10, "with missing": 9}

		Convey("Then every test size keeps X, y and meta aligned", func() {
			for name, f := range frames {
				for i := 1; i < 20; i++ {
					size := float64(i) / 20
					s, err := featurestore.PrepareTrainingData(f, opts(size))
					if size >= 0.9 {
						// fewer than one training row before snapping
						So(errors.Is(err, featurestore.ErrEmptyTrainingData), ShouldBeTrue)
						continue
					}
					So(err, ShouldBeNil)
					So(s.XTrain.Keys(), ShouldResemble, s.MetaTrain.Keys())
					So(s.XTest.Keys(), ShouldResemble, s.MetaTest.Keys())
					So(s.YTrain, ShouldHaveLength, s.XTrain.Len())
					So(s.YTest, ShouldHaveLength, s.XTest.Len())
					So(s.XTrain.Len(), ShouldBeGreaterThan, 0)
					So(s.XTest.Len(), ShouldBeGreaterThan, 0)

					keys := append(s.XTrain.Keys(), s.XTest.Keys()...)
					So(keys, ShouldHaveLength, rows[name])
					for k, key := range keys {
						So(key, ShouldEqual, k)
					}

					lastTrain := s.MetaTrain.Float("round", s.MetaTrain.Len()-1)
					So(lastTrain, ShouldBeLessThan, s.MetaTest.Float("round", 0))
					// grid_position is the source row number plus one
					for _, part := range []struct{ x, meta *table.Frame }{{s.XTrain, s.MetaTrain}, {s.XTest, s.MetaTest}} {
						for j := 0; j < part.x.Len(); j++ {
							src := int(part.x.Float("grid_position", j)) - 1
							So(part.meta.Float("round", j), ShouldEqual, sourceRounds[src])
							So(part.meta.Text("driver", j), ShouldEqual, sourceDrivers[src])
							So(math.IsNaN(part.x.Float("avg_position_last3", j)), ShouldBeFalse)
						}
					}
				}
			}
		})
	})
}

func TestFeatureImportance(t *testing.T) {
	Convey("Feature statistics skip identifiers and missing values", t, func() {
		f := table.New(4)
		f, _ = f.WithFloats("year", []float64{2024, 2024, 2024, 2024})
		f, _ = f.WithFloats("position", []float64{1, 2, 3, 4})
		f, _ = f.WithFloats("grid_position", []float64{2, 4, math.NaN(), 6})

		imp := featurestore.FeatureImportance(f, "")
		So(imp, ShouldHaveLength, 1)
		So(imp[0].Feature, ShouldEqual, "grid_position")
		So(imp[0].Count, ShouldEqual, 3)
		So(imp[0].MissingPct, ShouldEqual, 25)
		So(imp[0].Mean, ShouldEqual, 4)
		So(imp[0].Std, ShouldAlmostEqual, 2, 1e-9)
		So(imp[0].Min, ShouldEqual, 2)
		So(imp[0].Max, ShouldEqual, 6)
	})
}
