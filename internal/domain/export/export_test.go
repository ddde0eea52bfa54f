package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/okian/geneva/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func sampleEvaluations() []model.Evaluation {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []model.Evaluation{
		{
			ID: 1, SessionID: "E1_abc", PatientID: "P1", GeneName: "BRCA1", IsCausal: true,
			FinalRank: intPtr(1), Traceability: strPtr("high"), Confidence: intPtr(4),
			PreferredSource: "omim,llm", Notes: `strong "hit", see report`,
			CreatedAt: base, UpdatedAt: base,
		},
		{
			ID: 2, SessionID: "E1_abc", PatientID: "P1", GeneName: "TP53",
			CreatedAt: base, UpdatedAt: base.Add(time.Minute),
		},
	}
}

func TestWriteEvaluator(t *testing.T) {
	Convey("Given stored evaluations for one evaluator", t, func() {
		rows := sampleEvaluations()

		Convey("When exported", func() {
			var buf bytes.Buffer
			n, err := WriteEvaluator(&buf, rows)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			lines := strings.Split(buf.String(), "\n")

			Convey("Then the header is fixed and rows are newest first", func() {
				So(lines[0], ShouldEqual, strings.Join(EvaluatorHeader, ","))
				So(len(lines), ShouldEqual, 3)
				So(lines[1], ShouldStartWith, "E1_abc,P1,TP53,false,,")
				So(lines[2], ShouldStartWith, "E1_abc,P1,BRCA1,true,1,high,")
			})

			Convey("Then empty notes are still quoted and nulls are empty", func() {
				So(lines[1], ShouldEqual, `E1_abc,P1,TP53,false,,,,,,,,,"",2025-03-01T10:00:00Z,2025-03-01T10:01:00Z`)
			})

			Convey("Then a standard CSV reader recovers the original values", func() {
				records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
				So(err, ShouldBeNil)
				So(records[2][12], ShouldEqual, `strong "hit", see report`)
				So(records[2][11], ShouldEqual, "omim,llm")
			})

			Convey("Then exporting again is byte-identical", func() {
				var again bytes.Buffer
				_, err := WriteEvaluator(&again, rows)
				So(err, ShouldBeNil)
				So(again.String(), ShouldEqual, buf.String())
			})
		})
	})

	Convey("Given no evaluations", t, func() {
		var buf bytes.Buffer
		n, err := WriteEvaluator(&buf, nil)

		Convey("Then only the header is written", func() {
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
			So(buf.String(), ShouldEqual, strings.Join(EvaluatorHeader, ","))
		})
	})
}

func TestWriteAll(t *testing.T) {
	Convey("Given evaluations joined with their sessions", t, func() {
		evs := sampleEvaluations()
		rows := []model.ExportRow{
			{Evaluation: evs[0], EvaluatorID: "E1", DetailedFilename: "detailed.csv", SummaryFilename: "summary, v2.csv"},
			{Evaluation: evs[1], EvaluatorID: "E1", DetailedFilename: "detailed.csv", SummaryFilename: "summary.csv"},
		}

		Convey("When exported", func() {
			var buf bytes.Buffer
			_, err := WriteAll(&buf, rows)
			So(err, ShouldBeNil)

			records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
			So(err, ShouldBeNil)

			Convey("Then evaluator and filenames sit around the rating columns", func() {
				So(records[0], ShouldResemble, AllHeader)
				So(records[1][0], ShouldEqual, "E1")
				So(records[1][3], ShouldEqual, "TP53")
				So(records[2][14], ShouldEqual, "detailed.csv")
				So(records[2][15], ShouldEqual, "summary, v2.csv")
				So(records[2][16], ShouldEqual, "2025-03-01T10:00:00Z")
			})
		})
	})
}

func TestFilenames(t *testing.T) {
	Convey("Given an export time", t, func() {
		now := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)

		Convey("Then attachment names carry the ISO date", func() {
			So(EvaluatorFilename("E1", now), ShouldEqual, "evaluations_E1_2025-12-31.csv")
			So(AllFilename(now), ShouldEqual, "all_evaluations_2025-12-31.csv")
		})
	})

	Convey("Given text with quotes", t, func() {
		Convey("Then quoting doubles them", func() {
			So(Quote(`a "b"`), ShouldEqual, `"a ""b"""`)
		})
	})
}
