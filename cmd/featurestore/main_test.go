package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/domain/table"
	types "github.com/okian/pitwall/internal/domain/types"
	"github.com/okian/pitwall/internal/featurestore"
	"github.com/okian/pitwall/internal/models"
)

func seed(t *testing.T) string {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store, err := featurestore.NewStore(dir, featurestore.WithClock(func() time.Time { return now }))
	So(err, ShouldBeNil)

	f := table.New(4)
	f, _ = f.WithStrings("driver", []string{"VER", "LEC", "NOR", "PIA"})
	f, _ = f.WithFloats("grid_position", []float64{1, 3, math.NaN(), 8})
	f, _ = f.WithFloats("position", []float64{1, 2, 3, 4})
	_, err = store.Save(context.Background(), f, "race_features", map[string]any{"years": []int{2024}})
	So(err, ShouldBeNil)
	return dir
}

func TestCLI(t *testing.T) {
	Convey("Given a store with one feature set", t, func() {
		ctx := context.Background()
		dir := seed(t)
		var out, errOut bytes.Buffer

		Convey("When listing", func() {
			err := run(ctx, []string{"-path", dir, "-list"}, &out, &errOut)

			Convey("Then the version is shown", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "race_features")
				So(out.String(), ShouldContainSubstring, "20240501_100000")
			})
		})

		Convey("When describing the latest version", func() {
			err := run(ctx, []string{"-path", dir, "-describe", "race_features"}, &out, &errOut)

			Convey("Then metadata and column types are printed", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "rows")
				So(out.String(), ShouldContainSubstring, "grid_position")
				So(out.String(), ShouldContainSubstring, "float64")
			})
		})

		Convey("When asking for importance as JSON", func() {
			err := run(ctx, []string{"-path", dir, "-importance", "race_features", "-json"}, &out, &errOut)
			So(err, ShouldBeNil)

			Convey("Then every numeric feature except the target is summarized", func() {
				var stats []featurestore.Importance
				So(json.Unmarshal(out.Bytes(), &stats), ShouldBeNil)
				So(stats, ShouldHaveLength, 1)
				So(stats[0].Feature, ShouldEqual, "grid_position")
				So(stats[0].MissingPct, ShouldEqual, 25)
				So(stats[0].Count, ShouldEqual, 3)
			})
		})

		Convey("When the feature set does not exist", func() {
			err := run(ctx, []string{"-path", dir, "-describe", "other"}, &out, &errOut)
			So(errors.Is(err, featurestore.ErrFeatureSetNotFound), ShouldBeTrue)
		})

		Convey("When no action or several actions are given", func() {
			So(errors.Is(run(ctx, []string{"-path", dir}, &out, &errOut), errUsage), ShouldBeTrue)
			So(errors.Is(run(ctx, []string{"-path", dir, "-list", "-describe", "x"}, &out, &errOut), errUsage), ShouldBeTrue)
			So(errOut.String(), ShouldContainSubstring, "Usage")
		})
	})

	Convey("Given an empty store", t, func() {
		var out bytes.Buffer
		err := run(context.Background(), []string{"-path", t.TempDir(), "-list"}, &out, &out)
		So(err, ShouldBeNil)
		So(out.String(), ShouldContainSubstring, "no feature sets")
	})
}

func TestRatingsAction(t *testing.T) {
	Convey("Given a saved rating model", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		x := table.New(3)
		x, _ = x.WithStrings("driver", []string{"LEC", "VER", "NOR"})
		x, _ = x.WithFloats("year", []float64{2024, 2024, 2024})
		x, _ = x.WithStrings("event_name", []string{"Monaco", "Monaco", "Monaco"})
		x, _ = x.WithFloats("round", []float64{8, 8, 8})
		m := models.NewRatingModel()
		So(m.Train(ctx, x, []float64{1, 2, 3}), ShouldBeNil)
		path := filepath.Join(dir, "models", "race_features_20240501_100000_elo.json")
		So(m.Save(ctx, path), ShouldBeNil)
		var out, errOut bytes.Buffer

		Convey("When printing its table", func() {
			err := run(ctx, []string{"-path", dir, "-ratings", path}, &out, &errOut)

			Convey("Then drivers are listed best first", func() {
				So(err, ShouldBeNil)
				So(out.String(), ShouldContainSubstring, "RANK")
				So(out.String(), ShouldContainSubstring, "LEC")
			})
		})

		Convey("When printing it as JSON", func() {
			err := run(ctx, []string{"-path", dir, "-ratings", path, "-json"}, &out, &errOut)
			So(err, ShouldBeNil)
			var entries []types.RatingEntry
			So(json.Unmarshal(out.Bytes(), &entries), ShouldBeNil)
			So(entries, ShouldHaveLength, 3)
			So(entries[0].DriverID, ShouldEqual, "LEC")
			So(entries[0].Rank, ShouldEqual, 1)
			So(entries[2].DriverID, ShouldEqual, "NOR")
		})

		Convey("When the file is not a rating model", func() {
			err := run(ctx, []string{"-path", dir, "-ratings", filepath.Join(dir, "missing.json")}, &out, &errOut)
			So(err, ShouldNotBeNil)
		})
	})
}
