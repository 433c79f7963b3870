package scoring_test

import (
	"testing"

	scoring "github.com/okian/pitwall/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExpectedScore(t *testing.T) {
	Convey("Given two ratings", t, func() {
		Convey("When they are equal", func() {
			So(scoring.ExpectedScore(1500, 1500), ShouldEqual, 0.5)
		})

		Convey("When one side is 400 points stronger", func() {
			So(scoring.ExpectedScore(1900, 1500), ShouldAlmostEqual, 10.0/11.0, 1e-12)
		})

		Convey("Then both sides' expectations sum to one", func() {
			a := scoring.ExpectedScore(1620, 1480)
			b := scoring.ExpectedScore(1480, 1620)
			So(a+b, ShouldAlmostEqual, 1.0, 1e-12)
		})
	})
}

func TestEloUpdate(t *testing.T) {
	Convey("Given the default Elo", t, func() {
		e := scoring.NewElo()
		So(e.K(), ShouldEqual, scoring.DefaultKFactor)

		Convey("When an evenly rated player wins", func() {
			So(e.Update(1500, 1500, scoring.Win), ShouldEqual, 1516)
		})

		Convey("When an evenly rated player loses", func() {
			So(e.Update(1500, 1500, scoring.Loss), ShouldEqual, 1484)
		})

		Convey("When drawing against an equal", func() {
			So(e.Update(1500, 1500, scoring.Draw), ShouldEqual, 1500)
		})
	})

	Convey("Given a custom K-factor", t, func() {
		e := scoring.NewElo(scoring.WithKFactor(10))
		So(e.Update(1500, 1500, scoring.Win), ShouldEqual, 1505)

		Convey("Non-positive values keep the default", func() {
			So(scoring.NewElo(scoring.WithKFactor(-1)).K(), ShouldEqual, scoring.DefaultKFactor)
		})
	})
}
