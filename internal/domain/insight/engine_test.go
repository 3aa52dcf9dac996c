package insight_test

import (
	"testing"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/insight"
	"github.com/okian/crewboard/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var exitRules = []insight.Rule{ //nolint:gochecknoglobals // test fixture
	{Name: "taxa_baixa", Severity: insight.SeverityWarning, Select: insight.SelectFirst, Metric: "Taxa", Op: insight.OpLT, Threshold: "taxa_baixa",
		Message: `Taxa de sucesso baixa ({{printf "%.1f" .Value}}%).`},
	{Name: "taxa_alta", Severity: insight.SeveritySuccess, Select: insight.SelectFirst, Metric: "Taxa", Op: insight.OpGT, Threshold: "taxa_alta",
		Message: `Ótimo desempenho ({{printf "%.1f" .Value}}%).`},
	{Name: "consistente", Severity: insight.SeverityInfo, Select: insight.SelectAlways, Fallback: true,
		Message: "Tudo consistente."},
}

var exitThresholds = map[string]float64{"taxa_baixa": 60, "taxa_alta": 85} //nolint:gochecknoglobals // test fixture

func rate(v float64) []aggregate.Aggregate {
	return []aggregate.Aggregate{{Key: dataset.Category("all"), Label: "all", Count: 4, Stats: map[string]float64{"Taxa": v}}}
}

func rules(ins []insight.Insight) []string {
	out := make([]string, 0, len(ins))
	for _, in := range ins {
		out = append(out, in.Rule)
	}
	return out
}

func TestEngine_SuccessRate(t *testing.T) {
	Convey("Given four exit attempts with three successes", t, func() {
		raw := dataset.Dataset{Fields: []string{"Resultado"}}
		for _, r := range []string{"Sucesso", "Falha", "Sucesso", "OK"} {
			raw.Records = append(raw.Records, dataset.Record{"Resultado": dataset.Category(r)})
		}
		ds, err := dataset.Derive(raw, []dataset.DerivedField{{Name: "Sucesso", Op: dataset.OpMatch, Left: "Resultado", Pattern: "sucesso|ok|1"}})
		So(err, ShouldBeNil)
		aggs, err := aggregate.GroupBy(ds, "", []aggregate.Metric{{Name: "Taxa", Field: "Sucesso", Stat: aggregate.StatMean}})
		So(err, ShouldBeNil)

		Convey("Then the rate is 75 percent", func() {
			So(aggs[0].Stats["Taxa"], ShouldEqual, 75)
		})

		Convey("When evaluated against thresholds 60 and 85", func() {
			out := insight.Collect(insight.NewEngine(exitRules).Evaluate(insight.EvalContext{Aggregates: aggs, Dataset: ds, Thresholds: exitThresholds}))

			Convey("Then neither rate rule fires and the fallback does", func() {
				So(rules(out), ShouldResemble, []string{"consistente"})
				So(out[0].Severity, ShouldEqual, insight.SeverityInfo)
			})
		})
	})

	Convey("Given rates at and around the boundaries", t, func() {
		engine := insight.NewEngine(exitRules)
		eval := func(v float64) []string {
			return rules(insight.Collect(engine.Evaluate(insight.EvalContext{Aggregates: rate(v), Thresholds: exitThresholds})))
		}

		Convey("Then comparisons are strict", func() {
			So(eval(60), ShouldResemble, []string{"consistente"})
			So(eval(59.9), ShouldResemble, []string{"taxa_baixa"})
			So(eval(85), ShouldResemble, []string{"consistente"})
			So(eval(85.1), ShouldResemble, []string{"taxa_alta"})
		})

		Convey("Then the message is rendered", func() {
			out := insight.Collect(engine.Evaluate(insight.EvalContext{Aggregates: rate(50), Thresholds: exitThresholds}))
			So(out[0].Message, ShouldEqual, "Taxa de sucesso baixa (50.0%).")
			So(out[0].Value, ShouldEqual, 50)
		})
	})
}

func TestEngine_Selectors(t *testing.T) {
	aggs := []aggregate.Aggregate{
		{Label: "M01", Count: 3, Stats: map[string]float64{"Precisao": 98, "Desvio": 2, "Media": 10, "Max": 20}},
		{Label: "M02", Count: 3, Stats: map[string]float64{"Precisao": 60, "Desvio": 7, "Media": 15, "Max": 20}},
		{Label: "M03", Count: 3, Stats: map[string]float64{"Precisao": 99, "Desvio": 7, "Media": 5, "Max": 20}},
	}
	ds := dataset.Dataset{Fields: []string{"Total"}, Records: []dataset.Record{
		{"Total": dataset.Number(200)},
		{"Total": dataset.Missing(dataset.KindNumeric)},
		{"Total": dataset.Number(180)},
	}}
	thresholds := map[string]float64{"foco": 70, "instavel": 5, "excelente": 97, "ratio": 0.6}

	Convey("Given rules using every selector", t, func() {
		rs := []insight.Rule{
			{Name: "foco", Severity: insight.SeverityInfo, Select: insight.SelectMin, Metric: "Precisao", Op: insight.OpLT, Threshold: "foco", Message: "Focar em {{.Group}}"},
			{Name: "queda", Severity: insight.SeverityWarning, Select: insight.SelectTrend, Field: "Total", Op: insight.OpLT, Threshold: "0", Message: "Queda de {{.Value}}"},
			{Name: "subida", Severity: insight.SeveritySuccess, Select: insight.SelectTrend, Field: "Total", Op: insight.OpGT, Threshold: "0", Message: "Subida"},
			{Name: "instavel", Severity: insight.SeverityWarning, Select: insight.SelectMax, Metric: "Desvio", Op: insight.OpGT, Threshold: "instavel", Message: "{{.Group}} instável"},
			{Name: "excelente", Severity: insight.SeveritySuccess, Select: insight.SelectEach, Metric: "Precisao", Op: insight.OpGT, Threshold: "excelente", Message: "{{.Group}} excelente"},
			{Name: "melhorar", Severity: insight.SeverityInfo, Select: insight.SelectEach, Metric: "Media", Op: insight.OpLT, Threshold: "ratio", Of: "Max", Message: "{{.Group}} abaixo de {{.Threshold}}"},
			{Name: "fallback", Severity: insight.SeverityInfo, Select: insight.SelectAlways, Fallback: true, Message: "nada"},
		}
		out := insight.Collect(insight.NewEngine(rs).Evaluate(insight.EvalContext{Aggregates: aggs, Dataset: ds, Thresholds: thresholds}))

		Convey("Then insights follow declaration order", func() {
			So(rules(out), ShouldResemble, []string{"foco", "queda", "instavel", "excelente", "excelente", "melhorar", "melhorar"})
		})

		Convey("Then min, max and each pick the right groups", func() {
			So(out[0].Message, ShouldEqual, "Focar em M02")
			So(out[1].Message, ShouldEqual, "Queda de -20")
			So(out[2].Group, ShouldEqual, "M02")
			So(out[3].Group, ShouldEqual, "M01")
			So(out[4].Group, ShouldEqual, "M03")
			So(out[5].Message, ShouldEqual, "M01 abaixo de 12")
			So(out[6].Group, ShouldEqual, "M03")
		})
	})

	Convey("Given rules that cannot apply", t, func() {
		rs := []insight.Rule{
			{Name: "metric", Severity: insight.SeverityInfo, Select: insight.SelectMin, Metric: "Nope", Message: "x"},
			{Name: "threshold", Severity: insight.SeverityInfo, Select: insight.SelectFirst, Metric: "Precisao", Op: insight.OpGT, Threshold: "missing", Message: "x"},
			{Name: "template", Severity: insight.SeverityInfo, Select: insight.SelectAlways, Message: "{{.Nope"},
			{Name: "field", Severity: insight.SeverityInfo, Select: insight.SelectTrend, Field: "Nope", Message: "x"},
			{Name: "ok", Severity: insight.SeverityInfo, Select: insight.SelectFirst, Metric: "Precisao", Message: "{{.Group}}"},
		}

		Convey("Then they are skipped without failing the rest", func() {
			out := insight.Collect(insight.NewEngine(rs).Evaluate(insight.EvalContext{Aggregates: aggs, Dataset: ds}))
			So(rules(out), ShouldResemble, []string{"ok"})
		})
	})

	Convey("Given a score referenced by a rule", t, func() {
		scores := map[string]scoring.Scores{"Score": {{Label: "M01", Value: 3}, {Label: "M02", Value: 1}, {Label: "M03", Value: 2}}}
		rs := []insight.Rule{{Name: "best", Severity: insight.SeveritySuccess, Select: insight.SelectMin, Metric: "Score", Message: "{{.Group}}"}}

		Convey("Then the score table is consulted", func() {
			out := insight.Collect(insight.NewEngine(rs).Evaluate(insight.EvalContext{Aggregates: aggs, Scores: scores}))
			So(out, ShouldHaveLength, 1)
			So(out[0].Group, ShouldEqual, "M02")
		})
	})
}

func TestEngine_Sequence(t *testing.T) {
	Convey("Given an evaluated sequence", t, func() {
		rs := []insight.Rule{
			{Name: "a", Severity: insight.SeverityInfo, Select: insight.SelectAlways, Message: "a"},
			{Name: "b", Severity: insight.SeverityInfo, Select: insight.SelectAlways, Message: "b"},
		}
		seq := insight.NewEngine(rs).Evaluate(insight.EvalContext{})

		Convey("When the consumer stops early", func() {
			var got []string
			for in := range seq {
				got = append(got, in.Rule)
				break
			}

			Convey("Then only the consumed insight was produced", func() {
				So(got, ShouldResemble, []string{"a"})
			})

			Convey("Then a second iteration yields nothing", func() {
				So(insight.Collect(seq), ShouldBeEmpty)
			})
		})
	})
}
