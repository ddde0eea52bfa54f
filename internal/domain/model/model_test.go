package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	model "github.com/okian/geneva/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestSessionKey(t *testing.T) {
	convey.Convey("Given an evaluator and fingerprint", t, func() {
		convey.Convey("Then the key joins them with an underscore", func() {
			convey.So(model.SessionKey("E1", "abc123"), convey.ShouldEqual, "E1_abc123")
		})
	})
}

func TestEvaluationInputDecoding(t *testing.T) {
	convey.Convey("Given a client evaluation payload", t, func() {
		convey.Convey("When ranks arrive as strings and sources as a joined string", func() {
			var in model.EvaluationInput
			err := json.Unmarshal([]byte(`{
				"patient_id":"P1","gene_name":"BRCA1","is_causal":true,
				"final_rank":"3","traceability":"high","phenotype_match":"",
				"confidence":4,"interpretability":null,
				"preferred_source":"omim,llm","notes":"ok"}`), &in)

			convey.Convey("Then the fields are normalised", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(in.FinalRank, convey.ShouldResemble, model.IntOf(3))
				convey.So(in.Traceability, convey.ShouldResemble, model.StringOf("high"))
				convey.So(in.PhenotypeMatch.Valid, convey.ShouldBeFalse)
				convey.So(in.Confidence.Value, convey.ShouldEqual, 4)
				convey.So(in.Interpretability.Valid, convey.ShouldBeFalse)
				convey.So(in.PreferredSource.String(), convey.ShouldEqual, "omim,llm")
			})
		})

		convey.Convey("When sources arrive as an array", func() {
			var in model.EvaluationInput
			err := json.Unmarshal([]byte(`{"patient_id":"P1","gene_name":"G","preferred_source":["kg"," gr ",""]}`), &in)

			convey.Convey("Then they are joined without blanks", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(in.PreferredSource.String(), convey.ShouldEqual, "kg,gr")
			})
		})

		convey.Convey("When a rank is not numeric", func() {
			var in model.EvaluationInput
			err := json.Unmarshal([]byte(`{"final_rank":"first"}`), &in)

			convey.Convey("Then decoding fails with ErrInvalidNumber", func() {
				convey.So(errors.Is(err, model.ErrInvalidNumber), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a rank is empty", func() {
			var in model.EvaluationInput
			err := json.Unmarshal([]byte(`{"final_rank":""}`), &in)

			convey.Convey("Then it is absent", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(in.FinalRank.Ptr(), convey.ShouldBeNil)
			})
		})
	})
}

func TestEvaluationInputValidate(t *testing.T) {
	convey.Convey("Given an input without identity fields", t, func() {
		err := model.EvaluationInput{}.Validate()

		convey.Convey("Then both missing fields are named", func() {
			convey.So(errors.Is(err, model.ErrMissingFields), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldEqual, "patient_id, gene_name required")
		})
	})

	convey.Convey("Given a complete input", t, func() {
		in := model.EvaluationInput{PatientID: "P1", GeneName: "BRCA1"}

		convey.Convey("Then validation passes", func() {
			convey.So(in.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestEvaluationRoundTrip(t *testing.T) {
	convey.Convey("Given an input converted to a stored evaluation", t, func() {
		now := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
		in := model.EvaluationInput{
			PatientID:       "P1",
			GeneName:        "BRCA1",
			IsCausal:        true,
			FinalRank:       model.IntOf(1),
			Factuality:      model.StringOf("accurate"),
			Confidence:      model.IntOf(4),
			PreferredSource: model.SourceTags{"omim"},
			Notes:           `said "maybe"`,
		}
		ev := in.ToEvaluation("E1_abc", now)

		convey.Convey("Then nullable fields map to pointers", func() {
			convey.So(ev.SessionID, convey.ShouldEqual, "E1_abc")
			convey.So(*ev.FinalRank, convey.ShouldEqual, 1)
			convey.So(ev.Traceability, convey.ShouldBeNil)
			convey.So(*ev.Factuality, convey.ShouldEqual, "accurate")
			convey.So(ev.CreatedAt, convey.ShouldEqual, now)
			convey.So(ev.CacheKey(), convey.ShouldEqual, "P1_BRCA1")
		})

		convey.Convey("Then converting back yields the same input", func() {
			convey.So(model.InputFromEvaluation(ev), convey.ShouldResemble, in)
		})

		convey.Convey("Then the JSON form uses snake_case keys", func() {
			b, err := json.Marshal(ev)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldContainSubstring, `"gene_name":"BRCA1"`)
			convey.So(string(b), convey.ShouldContainSubstring, `"traceability":null`)
		})
	})
}
