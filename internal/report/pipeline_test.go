package report_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/insight"
	"github.com/okian/crewboard/internal/domain/scoring"
	"github.com/okian/crewboard/internal/report"
	"github.com/okian/crewboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func stabilityConfig() report.Config {
	return report.Config{
		Page:   "estabilidade",
		Title:  "Estabilidade",
		Source: "https://example.com/sheet.csv",
		Fields: []dataset.FieldSpec{
			{Name: "Velocidade", Kind: dataset.KindNumeric, Required: true},
			{Name: "Erro", Kind: dataset.KindNumeric, Required: true},
			{Name: "Tempo", Kind: dataset.KindNumeric, Required: true},
		},
		GroupBy: "Velocidade",
		Metrics: []aggregate.Metric{
			{Name: "Erro_Medio", Field: "Erro", Stat: aggregate.StatMean},
			{Name: "Variacao", Field: "Erro", Stat: aggregate.StatStd},
			{Name: "Tempo_Medio", Field: "Tempo", Stat: aggregate.StatMean},
		},
		Formulas: []scoring.Formula{
			{Name: "Score", Terms: []scoring.Term{{Metric: "Erro_Medio"}, {Metric: "Variacao"}}},
			{Name: "Geral", Terms: []scoring.Term{{Metric: "Score", Weight: 0.7}, {Metric: "Tempo_Medio", Weight: 0.3, Kind: scoring.KindTime}}},
		},
		Highlights: []report.HighlightSpec{
			{Name: "estavel", Metric: "Score"},
			{Name: "rapida", Metric: "Tempo_Medio"},
		},
		Rules: []insight.Rule{
			{Name: "melhor", Severity: insight.SeveritySuccess, Select: insight.SelectMin, Metric: "Geral", Message: "Velocidade {{.Group}}"},
			{Name: "instavel", Severity: insight.SeverityWarning, Select: insight.SelectMax, Metric: "Variacao", Op: insight.OpGT, Threshold: "variacao", Message: "{{.Group}}"},
		},
		Thresholds: map[string]float64{"variacao": 1},
	}
}

func raw(rows ...[]string) dataset.Dataset {
	return dataset.FromRows([]string{"Velocidade", "Erro", "Tempo"}, rows)
}

func TestPipeline_Run(t *testing.T) {
	Convey("Given the stability pipeline", t, func() {
		fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		p, err := report.New(stabilityConfig(), report.WithClock(func() time.Time { return fixed }))
		So(err, ShouldBeNil)

		Convey("When run on a raw sheet", func() {
			in := raw([]string{"10", "2", "5"}, []string{"10", "4", "7"}, []string{"20", "1", "3"}, []string{"", "9", "9"})
			rep, err := p.Run(context.Background(), in, report.Query{})

			Convey("Then the aggregates are computed per speed", func() {
				So(err, ShouldBeNil)
				So(rep.Page, ShouldEqual, "estabilidade")
				So(rep.GeneratedAt, ShouldEqual, fixed)
				So(rep.Stats.DroppedRows, ShouldEqual, 1)
				So(rep.Aggregates, ShouldHaveLength, 2)
				So(rep.Aggregates[0].Stats["Erro_Medio"], ShouldEqual, 3)
				So(rep.Aggregates[0].Stats["Variacao"], ShouldAlmostEqual, math.Sqrt2, 1e-12)
				So(rep.Aggregates[1].Stats["Tempo_Medio"], ShouldEqual, 3)
			})

			Convey("Then scores are layered in order", func() {
				g, ok := rep.Scores["Geral"].Get("20")
				So(ok, ShouldBeTrue)
				So(g, ShouldAlmostEqual, 0.7*1+0.3*3, 1e-12)
			})

			Convey("Then highlights and insights name the best groups", func() {
				So(rep.Highlights, ShouldHaveLength, 2)
				So(rep.Highlights[0].Group, ShouldEqual, "20")
				So(rep.Highlights[1].Group, ShouldEqual, "20")
				So(rep.Insights, ShouldHaveLength, 2)
				So(rep.Insights[0].Message, ShouldEqual, "Velocidade 20")
				So(rep.Insights[1].Group, ShouldEqual, "10")
			})

			Convey("Then the raw dataset is untouched", func() {
				So(in.Records[0]["Erro"].Kind, ShouldEqual, dataset.KindText)
			})

			Convey("Then every run gets its own id", func() {
				again, err := p.Run(context.Background(), in, report.Query{})
				So(err, ShouldBeNil)
				So(again.RunID, ShouldNotEqual, rep.RunID)
			})
		})

		Convey("When a required column is missing", func() {
			in := dataset.FromRows([]string{"Velocidade", "Tempo"}, [][]string{{"1", "2"}})
			_, err := p.Run(context.Background(), in, report.Query{})

			Convey("Then a schema report error is returned", func() {
				var re *report.Error
				So(errors.As(err, &re), ShouldBeTrue)
				So(re.Kind, ShouldEqual, report.KindSchema)
				So(re.Error(), ShouldStartWith, "cannot build report: ")
			})
		})

		Convey("When every row is invalid", func() {
			_, err := p.Run(context.Background(), raw([]string{"x", "y", "z"}), report.Query{})

			Convey("Then a single empty report error is returned", func() {
				var re *report.Error
				So(errors.As(err, &re), ShouldBeTrue)
				So(re.Kind, ShouldEqual, report.KindEmpty)
				So(errors.Is(err, aggregate.ErrEmpty), ShouldBeTrue)
			})
		})

		Convey("When filtering by a field value", func() {
			rep, err := p.Run(context.Background(), raw([]string{"10", "2", "5"}, []string{"20", "1", "3"}),
				report.Query{Equals: map[string][]string{"Velocidade": {"20"}}})

			Convey("Then only matching groups remain", func() {
				So(err, ShouldBeNil)
				So(rep.Aggregates, ShouldHaveLength, 1)
				So(rep.Aggregates[0].Label, ShouldEqual, "20")
			})
		})
	})
}

func TestPipeline_Unpivot(t *testing.T) {
	Convey("Given a rounds pipeline with mission columns", t, func() {
		cfg := report.Config{
			Page:   "rounds",
			Source: "https://example.com/rounds.csv",
			Fields: []dataset.FieldSpec{
				{Name: "Data", Kind: dataset.KindDate, Required: true},
				{Name: "Total", Kind: dataset.KindNumeric},
				{Name: "Missao", Kind: dataset.KindCategorical, Required: true},
				{Name: "Pontos", Kind: dataset.KindNumeric},
			},
			Unpivot: &dataset.UnpivotSpec{Match: `^M\d+$`, IDFields: []string{"Data", "Total"}, VarName: "Missao", ValueName: "Pontos"},
			Derived: []dataset.DerivedField{
				{Name: "Precisao", Op: dataset.OpPercentOf, Left: "Pontos", KeyField: "Missao", Targets: map[string]float64{"M03": 40}, Default: 30},
			},
			DateField: "Data",
			GroupBy:   "Missao",
			Metrics: []aggregate.Metric{
				{Name: "Precisao", Field: "Precisao", Stat: aggregate.StatMean},
				{Name: "Desvio", Field: "Pontos", Stat: aggregate.StatStd},
			},
			Rules: []insight.Rule{
				{Name: "foco", Severity: insight.SeverityInfo, Select: insight.SelectMin, Metric: "Precisao", Op: insight.OpLT, Threshold: "foco", Message: "Focar em {{.Group}}"},
				{Name: "queda", Severity: insight.SeverityWarning, Select: insight.SelectTrend, Field: "Total", Op: insight.OpLT, Threshold: "0", Message: "Queda"},
			},
			Thresholds: map[string]float64{"foco": 80},
		}
		p, err := report.New(cfg)
		So(err, ShouldBeNil)

		in := dataset.FromRows([]string{"Data", "M01", "M03", "Total", "Obs"}, [][]string{
			{"01/03/2024", "30", "20", "200", ""},
			{"08/03/2024", "15", "40", "150", ""},
			{"15/03/2024", "30", "40", "", ""},
		})

		Convey("When run without a date range", func() {
			rep, err := p.Run(context.Background(), in, report.Query{})

			Convey("Then precision is computed against each mission's maximum", func() {
				So(err, ShouldBeNil)
				So(rep.Aggregates, ShouldHaveLength, 2)
				So(rep.Aggregates[0].Label, ShouldEqual, "M01")
				So(rep.Aggregates[0].Stats["Precisao"], ShouldAlmostEqual, 250.0/3, 1e-9)
				So(rep.Aggregates[1].Stats["Precisao"], ShouldAlmostEqual, 250.0/3, 1e-9)
			})

			Convey("Then the total trend uses first and last values", func() {
				So(rep.Insights, ShouldHaveLength, 1)
				So(rep.Insights[0].Rule, ShouldEqual, "queda")
				So(rep.Insights[0].Value, ShouldEqual, -50)
			})
		})

		Convey("When run with a date range", func() {
			from := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
			rep, err := p.Run(context.Background(), in, report.Query{From: from})

			Convey("Then earlier rounds are excluded", func() {
				So(err, ShouldBeNil)
				So(rep.Dataset.Len(), ShouldEqual, 4)
				So(rep.Aggregates[0].Stats["Precisao"], ShouldEqual, 75)
				So(rep.Insights[0].Message, ShouldEqual, "Focar em M01")
			})
		})
	})
}

func TestPipeline_BlankMissionsAndTimedRounds(t *testing.T) {
	Convey("Given rounds where a mission was not attempted", t, func() {
		cfg := report.Config{
			Page:   "rounds",
			Source: "https://example.com/rounds.csv",
			Fields: []dataset.FieldSpec{
				{Name: "Data", Kind: dataset.KindDate, Required: true},
				{Name: "Missao", Kind: dataset.KindCategorical, Required: true},
				{Name: "Pontos", Kind: dataset.KindNumeric},
			},
			Unpivot: &dataset.UnpivotSpec{Match: `^M\d+$`, IDFields: []string{"Data"}, VarName: "Missao", ValueName: "Pontos"},
			Derived: []dataset.DerivedField{
				{Name: "Precisao", Op: dataset.OpPercentOf, Left: "Pontos", KeyField: "Missao", Default: 30, ZeroMissing: true},
			},
			DateField: "Data",
			GroupBy:   "Missao",
			Metrics: []aggregate.Metric{
				{Name: "Precisao_Media", Field: "Precisao", Stat: aggregate.StatMean},
			},
		}
		p, err := report.New(cfg)
		So(err, ShouldBeNil)

		in := dataset.FromRows([]string{"Data", "M01"}, [][]string{
			{"01/05/2024", "30"},
			{"02/05/2024 14:30", ""},
		})

		Convey("When the blank cell is part of the range", func() {
			rep, err := p.Run(context.Background(), in, report.Query{})

			Convey("Then it counts as zero points", func() {
				So(err, ShouldBeNil)
				So(rep.Aggregates, ShouldHaveLength, 1)
				So(rep.Aggregates[0].Stats["Precisao_Media"], ShouldEqual, 50)
			})
		})

		Convey("When the range ends on the day of an afternoon round", func() {
			to := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
			rep, err := p.Run(context.Background(), in, report.Query{To: to})

			Convey("Then that round is kept", func() {
				So(err, ShouldBeNil)
				So(rep.Dataset.Len(), ShouldEqual, 2)
			})
		})
	})
}

func TestPipeline_SearchRangesAndBreakdowns(t *testing.T) {
	Convey("Given motor readings with change notes", t, func() {
		cfg := report.Config{
			Page:   "motores",
			Source: "https://example.com/motores.csv",
			Fields: []dataset.FieldSpec{
				{Name: "Rotacao", Kind: dataset.KindNumeric, Pattern: `(\d+)`},
				{Name: "Motor", Kind: dataset.KindCategorical, Required: true},
				{Name: "Grau", Kind: dataset.KindNumeric, Required: true},
				{Name: "Nota", Kind: dataset.KindText},
			},
			GroupBy:      "Motor",
			FilterFields: []string{"Rotacao"},
			Breakdowns:   []string{"Nota", "Ausente"},
			Metrics: []aggregate.Metric{
				{Name: "Leituras", Field: "Grau", Stat: aggregate.StatCount},
			},
		}
		p, err := report.New(cfg)
		So(err, ShouldBeNil)

		lo, hi := 2.0, 3.0
		in := dataset.FromRows([]string{"Rotacao", "Motor", "Grau", "Nota"}, [][]string{
			{"Rotação 1", "A", "90", "troca de cabo"},
			{"Rotação 2", "A", "91", ""},
			{"Rotação 3", "B", "88", "Cabo solto"},
			{"Rotação 4", "B", "87", "troca de cabo"},
		})

		Convey("When a rotation range is given", func() {
			rep, err := p.Run(context.Background(), in, report.Query{Ranges: map[string]report.Range{"Rotacao": {Min: &lo, Max: &hi}}})

			Convey("Then only readings inside it are aggregated", func() {
				So(err, ShouldBeNil)
				So(rep.Dataset.Len(), ShouldEqual, 2)
				So(rep.Aggregates[0].Stats["Leituras"], ShouldEqual, 1)
				So(rep.Aggregates[1].Stats["Leituras"], ShouldEqual, 1)
			})
		})

		Convey("When a range names a field that is not filterable", func() {
			rep, err := p.Run(context.Background(), in, report.Query{Ranges: map[string]report.Range{"Grau": {Min: &hi}}})
			So(err, ShouldBeNil)
			So(rep.Dataset.Len(), ShouldEqual, 4)
		})

		Convey("When searching for a note", func() {
			rep, err := p.Run(context.Background(), in, report.Query{Search: "CABO"})

			Convey("Then matching rows from any field are kept", func() {
				So(err, ShouldBeNil)
				So(rep.Dataset.Len(), ShouldEqual, 3)
			})
		})

		Convey("When breakdowns are requested", func() {
			rep, err := p.Run(context.Background(), in, report.Query{})

			Convey("Then present values are counted and absent fields skipped", func() {
				So(err, ShouldBeNil)
				So(rep.Breakdowns, ShouldContainKey, "Nota")
				So(rep.Breakdowns, ShouldNotContainKey, "Ausente")
				So(rep.Breakdowns["Nota"], ShouldResemble, []report.Bucket{
					{Value: "Cabo solto", Count: 1},
					{Value: "troca de cabo", Count: 2},
				})
			})
		})
	})
}

func TestConfig(t *testing.T) {
	Convey("Given an invalid configuration", t, func() {
		cfg := stabilityConfig()
		cfg.Metrics = nil

		Convey("Then New reports a config error", func() {
			_, err := report.New(cfg)
			var re *report.Error
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Kind, ShouldEqual, report.KindConfig)
			So(errors.Is(err, report.ErrInvalidConfig), ShouldBeTrue)
		})
	})

	Convey("Given a formula referencing an unknown metric", t, func() {
		cfg := stabilityConfig()
		cfg.Formulas = append(cfg.Formulas, scoring.Formula{Name: "x", Terms: []scoring.Term{{Metric: "nope"}}})
		So(errors.Is(cfg.Validate(), report.ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Given a page with variants", t, func() {
		cfg := stabilityConfig()
		cfg.Source = ""
		cfg.Variants = map[string]string{"M02": "https://example.com/2.csv", "M01": "https://example.com/1.csv"}

		Convey("Then the first variant is the default", func() {
			So(cfg.Validate(), ShouldBeNil)
			u, err := cfg.SourceURL("")
			So(err, ShouldBeNil)
			So(u, ShouldEqual, "https://example.com/1.csv")
			So(cfg.VariantNames(), ShouldResemble, []string{"M01", "M02"})
		})

		Convey("Then an unknown variant is rejected", func() {
			_, err := cfg.SourceURL("M99")
			So(errors.Is(err, report.ErrUnknownVariant), ShouldBeTrue)
		})

		Convey("Then an undefined default variant is invalid", func() {
			cfg.DefaultVariant = "M07"
			So(errors.Is(cfg.Validate(), report.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
