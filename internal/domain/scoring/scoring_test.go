package scoring_test

import (
	"errors"
	"testing"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
	scoring "github.com/okian/crewboard/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func agg(label string, stats map[string]float64) aggregate.Aggregate {
	return aggregate.Aggregate{Key: dataset.Category(label), Label: label, Count: 1, Stats: stats}
}

var stability = scoring.Formula{ //nolint:gochecknoglobals // test fixture
	Name: "Score_Estabilidade",
	Terms: []scoring.Term{
		{Metric: "Erro_Medio_Mov"},
		{Metric: "Variacao_Mov"},
		{Metric: "Erro_Medio_Guinada"},
		{Metric: "Variacao_Guinada"},
	},
}

var performance = scoring.Formula{ //nolint:gochecknoglobals // test fixture
	Name: "Score_Desempenho",
	Terms: []scoring.Term{
		{Metric: "Score_Estabilidade", Weight: 0.7},
		{Metric: "Tempo_Medio", Weight: 0.3, Kind: scoring.KindTime},
	},
}

func TestEngine_Score(t *testing.T) {
	Convey("Given aggregates for two speeds", t, func() {
		aggs := []aggregate.Aggregate{
			agg("10", map[string]float64{"Erro_Medio_Mov": -2, "Variacao_Mov": 1, "Erro_Medio_Guinada": 0.5, "Variacao_Guinada": 0.5, "Tempo_Medio": 10}),
			agg("20", map[string]float64{"Erro_Medio_Mov": 1, "Variacao_Mov": 0, "Erro_Medio_Guinada": -1, "Variacao_Guinada": 0, "Tempo_Medio": 5}),
		}

		Convey("When scoring stability", func() {
			scores, err := scoring.Score(aggs, stability)

			Convey("Then error terms use absolute values", func() {
				So(err, ShouldBeNil)
				v, ok := scores.Get("10")
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 4)
				v, _ = scores.Get("20")
				So(v, ShouldEqual, 2)
			})

			Convey("Then the best group has the lowest score", func() {
				best, ok := scores.Best()
				So(ok, ShouldBeTrue)
				So(best.Label, ShouldEqual, "20")
			})
		})

		Convey("When scoring every formula in order", func() {
			engine := scoring.NewEngine(scoring.WithRounding(2))
			layered, all, err := engine.ScoreAll(aggs, []scoring.Formula{stability, performance})

			Convey("Then later formulas see earlier scores", func() {
				So(err, ShouldBeNil)
				v, _ := all["Score_Desempenho"].Get("10")
				So(v, ShouldEqual, 5.8)
				v, _ = all["Score_Desempenho"].Get("20")
				So(v, ShouldEqual, 2.9)
				So(layered[0].Stats["Score_Estabilidade"], ShouldEqual, 4)
			})

			Convey("Then the input aggregates are not mutated", func() {
				_, ok := aggs[0].Get("Score_Estabilidade")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a term references an unknown metric", func() {
			_, err := scoring.Score(aggs, scoring.Formula{Name: "x", Terms: []scoring.Term{{Metric: "nope"}}})
			So(errors.Is(err, scoring.ErrUnknownMetric), ShouldBeTrue)
		})

		Convey("When picking the best group by a metric", func() {
			best, err := scoring.BestBy(aggs, "Tempo_Medio")
			So(err, ShouldBeNil)
			So(best.Label, ShouldEqual, "20")

			_, err = scoring.BestBy(aggs, "nope")
			So(errors.Is(err, scoring.ErrUnknownMetric), ShouldBeTrue)
		})
	})

	Convey("Given a negatively signed error term", t, func() {
		aggs := []aggregate.Aggregate{agg("a", map[string]float64{"bonus": -3})}
		scores, err := scoring.Score(aggs, scoring.Formula{Name: "s", Terms: []scoring.Term{{Metric: "bonus", Sign: -1, Weight: 2}}})

		Convey("Then it subtracts the weighted magnitude", func() {
			So(err, ShouldBeNil)
			So(scores[0].Value, ShouldEqual, -6)
		})
	})

	Convey("Given ties", t, func() {
		scores := scoring.Scores{{Label: "a", Value: 1}, {Label: "b", Value: 1}}
		best, _ := scores.Best()
		So(best.Label, ShouldEqual, "a")
		_, ok := scoring.Scores{}.Best()
		So(ok, ShouldBeFalse)
	})
}

func TestScoreFunction(t *testing.T) {
	Convey("Given the package level Score operation", t, func() {
		aggs := []aggregate.Aggregate{
			agg("300", map[string]float64{"e": 2}),
			agg("400", map[string]float64{"e": 1}),
		}
		scores, err := scoring.Score(aggs, scoring.Formula{Name: "s", Terms: []scoring.Term{{Metric: "e"}}})

		Convey("Then it yields one GroupScore per aggregate", func() {
			So(err, ShouldBeNil)
			var best scoring.GroupScore
			best, ok := scores.Best()
			So(ok, ShouldBeTrue)
			So(best, ShouldResemble, scoring.GroupScore{Label: "400", Key: aggs[1].Key, Value: 1})
		})
	})
}

func TestEngine_Monotonic(t *testing.T) {
	Convey("Given a positively weighted error term", t, func() {
		formula := scoring.Formula{Name: "s", Terms: []scoring.Term{{Metric: "e", Weight: 1.5}, {Metric: "t", Weight: 0.3, Kind: scoring.KindTime}}}

		Convey("Then growing the error magnitude never lowers the score", func() {
			prev := -1.0
			for _, e := range []float64{0, -0.5, 1, -2, 3.25, 10} {
				s, err := scoring.Score([]aggregate.Aggregate{agg("g", map[string]float64{"e": e, "t": 4})}, formula)
				So(err, ShouldBeNil)
				So(s[0].Value, ShouldBeGreaterThanOrEqualTo, prev)
				prev = s[0].Value
			}
		})
	})
}
