package normalize_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/normalize"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseNumber(t *testing.T) {
	Convey("Given spreadsheet number spellings", t, func() {
		cases := map[string]float64{
			"3,50°":   3.5,
			" 12 mm ": 12,
			"85%":     85,
			"-1,25":   -1.25,
			"90º":     90,
			"0.5s":    0.5,
			"120ms":   120,
			"45 deg":  45,
			"1 234":   1234,
		}
		for in, want := range cases {
			got, ok := normalize.ParseNumber(in, nil)
			So(ok, ShouldBeTrue)
			So(got, ShouldAlmostEqual, want)
		}

		Convey("Then garbage and non-finite values are rejected", func() {
			for _, in := range []string{"abc", "", "°", "NaN", "inf"} {
				_, ok := normalize.ParseNumber(in, nil)
				So(ok, ShouldBeFalse)
			}
		})

		Convey("Then a pattern extracts the token", func() {
			got, ok := normalize.ParseNumber("Rotação 3", regexp.MustCompile(`(\d+)`))
			So(ok, ShouldBeTrue)
			So(got, ShouldEqual, 3)
			_, ok = normalize.ParseNumber("Rotação", regexp.MustCompile(`(\d+)`))
			So(ok, ShouldBeFalse)
		})
	})
}

func TestParseDate(t *testing.T) {
	Convey("Given day-first dates", t, func() {
		want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
		for _, in := range []string{"05/03/2024", "5/3/2024", "05/03/24", "05-03-2024", "05.03.2024", "2024-03-05"} {
			got, ok := normalize.ParseDate(in)
			So(ok, ShouldBeTrue)
			So(got.Equal(want), ShouldBeTrue)
		}

		Convey("Then a time of day is accepted", func() {
			got, ok := normalize.ParseDate("05/03/2024 14:30")
			So(ok, ShouldBeTrue)
			So(got.Hour(), ShouldEqual, 14)
		})

		Convey("Then invalid dates are rejected", func() {
			_, ok := normalize.ParseDate("32/13/2024")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestNormalize(t *testing.T) {
	specs := []dataset.FieldSpec{
		{Name: "Velocidade", Kind: dataset.KindNumeric, Required: true},
		{Name: "Erro", Kind: dataset.KindNumeric, Required: true},
		{Name: "Tempo", Kind: dataset.KindNumeric},
		{Name: "Teste", Kind: dataset.KindCategorical, Aliases: []string{"nº teste"}},
	}

	Convey("Given a raw sheet with messy headers and values", t, func() {
		raw := dataset.FromRows(
			[]string{" Velocidade ", "Erro", "Tempo", "Nº Teste", "Obs"},
			[][]string{
				{"10", "3,50°", "5", "T1", "ok"},
				{"10", "abc", "6", "T2", ""},
				{"20", "1", "abc", "T3", "x"},
			},
		)

		Convey("When normalized", func() {
			ds, stats, err := normalize.Normalize(raw, specs)

			Convey("Then headers are trimmed and aliases renamed", func() {
				So(err, ShouldBeNil)
				So(ds.Fields, ShouldResemble, []string{"Velocidade", "Erro", "Tempo", "Teste", "Obs"})
			})

			Convey("Then values are typed and bad required rows dropped", func() {
				So(ds.Len(), ShouldEqual, 2)
				So(ds.Records[0]["Erro"].Num, ShouldEqual, 3.5)
				So(ds.Records[0]["Teste"].Kind, ShouldEqual, dataset.KindCategorical)
				So(ds.Records[1]["Tempo"].Missing, ShouldBeTrue)
				So(ds.Records[0]["Obs"].Raw, ShouldEqual, "ok")
			})

			Convey("Then stats describe the run", func() {
				So(stats.InputRows, ShouldEqual, 3)
				So(stats.KeptRows, ShouldEqual, 2)
				So(stats.DroppedRows, ShouldEqual, 1)
				So(stats.ParseFailures["Erro"], ShouldEqual, 1)
				So(stats.ParseFailures["Tempo"], ShouldEqual, 1)
			})

			Convey("Then the raw input is untouched", func() {
				So(raw.Records[0]["Erro"].Raw, ShouldEqual, "3,50°")
				So(raw.Fields[0], ShouldEqual, " Velocidade ")
			})

			Convey("Then normalizing again changes nothing", func() {
				again, stats2, err := normalize.Normalize(ds, specs)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, ds)
				So(stats2.DroppedRows, ShouldEqual, 0)
			})
		})
	})

	Convey("Given valid rows only", t, func() {
		raw := dataset.FromRows([]string{"Velocidade", "Erro"}, [][]string{{"1", "2"}, {"3", "4"}})

		Convey("Then the record count is preserved and absent optional columns added", func() {
			ds, _, err := normalize.Normalize(raw, specs)
			So(err, ShouldBeNil)
			So(ds.Len(), ShouldEqual, 2)
			So(ds.HasField("Tempo"), ShouldBeTrue)
			So(ds.Records[1]["Tempo"].Missing, ShouldBeTrue)
		})
	})

	Convey("Given a sheet without a required column", t, func() {
		raw := dataset.FromRows([]string{"Velocidade", "Tempo"}, [][]string{{"1", "2"}})

		Convey("Then a SchemaError names the column", func() {
			_, _, err := normalize.Normalize(raw, specs)
			var se *normalize.SchemaError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Missing, ShouldResemble, []string{"Erro"})
			So(errors.Is(err, normalize.ErrSchema), ShouldBeTrue)
		})
	})

	Convey("Given a column that must exist but may be blank", t, func() {
		present := []dataset.FieldSpec{
			{Name: "Teste", Kind: dataset.KindText, MustExist: true},
			{Name: "Tempo", Kind: dataset.KindNumeric, Required: true},
		}

		Convey("When the header lacks it", func() {
			raw := dataset.FromRows([]string{"Tempo"}, [][]string{{"2"}})
			_, _, err := normalize.Normalize(raw, present)

			Convey("Then a SchemaError names the column", func() {
				var se *normalize.SchemaError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Missing, ShouldResemble, []string{"Teste"})
			})
		})

		Convey("When the header has it and a value is blank", func() {
			raw := dataset.FromRows([]string{"Teste", "Tempo"}, [][]string{{"", "2"}, {"T2", "3"}})
			ds, stats, err := normalize.Normalize(raw, present)

			Convey("Then the record is kept", func() {
				So(err, ShouldBeNil)
				So(ds.Len(), ShouldEqual, 2)
				So(stats.DroppedRows, ShouldEqual, 0)
				So(ds.Records[0]["Teste"].Missing, ShouldBeTrue)
			})
		})
	})

	Convey("Given a spec with an invalid pattern", t, func() {
		raw := dataset.FromRows([]string{"Rotacao"}, [][]string{{"Rotação 1"}})
		_, _, err := normalize.Normalize(raw, []dataset.FieldSpec{{Name: "Rotacao", Kind: dataset.KindNumeric, Pattern: "("}})
		So(errors.Is(err, dataset.ErrBadPattern), ShouldBeTrue)
	})
}
