package api

import (
	"errors"
	"net/url"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseQuery(t *testing.T) {
	Convey("Given query parameters", t, func() {
		Convey("When the range is reversed", func() {
			_, err := parseQuery(url.Values{"from": {"2025-02-01"}, "to": {"2025-01-01"}})
			So(err, ShouldNotBeNil)
		})

		Convey("When only filters are given", func() {
			q, err := parseQuery(url.Values{"Motor": {"Motor A"}})
			So(err, ShouldBeNil)
			So(q.From.IsZero(), ShouldBeTrue)
			So(q.Equals, ShouldResemble, map[string][]string{"Motor": {"Motor A"}})
		})

		Convey("When a search term and rotation bounds are given", func() {
			q, err := parseQuery(url.Values{"q": {" kp "}, "Rotacao.min": {"2"}, "Rotacao.max": {"4,5"}, "Motor": {"Motor A"}})
			So(err, ShouldBeNil)
			So(q.Search, ShouldEqual, "kp")
			lo, hi := q.Ranges["Rotacao"].Bounds()
			So(lo, ShouldEqual, 2)
			So(hi, ShouldEqual, 4.5)
			So(q.Equals, ShouldResemble, map[string][]string{"Motor": {"Motor A"}})
		})

		Convey("When only one bound is given", func() {
			q, err := parseQuery(url.Values{"Rotacao.min": {"3"}})
			So(err, ShouldBeNil)
			So(q.Ranges["Rotacao"].Max, ShouldBeNil)
		})

		Convey("When a bound is not a number", func() {
			_, err := parseQuery(url.Values{"Rotacao.max": {"muitas"}})
			So(err, ShouldNotBeNil)
		})

		Convey("When the bounds are reversed", func() {
			_, err := parseQuery(url.Values{"Rotacao.min": {"5"}, "Rotacao.max": {"1"}})
			So(err, ShouldNotBeNil)
		})

		Convey("When nothing is given", func() {
			q, err := parseQuery(url.Values{})
			So(err, ShouldBeNil)
			So(q.Equals, ShouldBeNil)
			So(q.Ranges, ShouldBeNil)
			So(q.Search, ShouldBeEmpty)
		})
	})
}

func TestError(t *testing.T) {
	Convey("Given an API error with kind and cause", t, func() {
		cause := errors.New("bad date")
		err := WrapKind("api.get_report", ErrBadRequest, cause)

		So(err.Error(), ShouldEqual, "bad request: bad date")
		So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(Wrap("op", cause).Error(), ShouldEqual, "bad date")
	})
}
