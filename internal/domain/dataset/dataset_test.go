package dataset

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const detailedCSV = "\xEF\xBB\xBFpatient_id,gene_name,final_rank,baseline_rank,omim_rank,omim_explanation,extra\n" +
	"P1,TP53,2,5,1,\"tumour, suppressor\",x\n" +
	"P1,BRCA1,1,1,,,x\n" +
	"P1,ABC,n/a,,,,x\n" +
	"P2,MYH7,1,3,,,x\n"

const summaryCSV = "patient_id,true_gene,final_predicted_rank,baseline_predicted_rank,total_candidates,final_causality_likelihood\n" +
	"P1,BRCA1,1,1,3,0.9\n" +
	"P1,BRCA1,1,1,3,0.9\n" +
	"P2,MYH7,1,3,1,0.7\n"

func TestParseCSV(t *testing.T) {
	Convey("Given a detailed CSV with a BOM and unknown columns", t, func() {
		rows, err := ParseDetailed([]byte(detailedCSV))

		Convey("Then rows decode by header name", func() {
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 4)
			So(rows[0].PatientID, ShouldEqual, "P1")
			So(rows[0].OMIMExplanation, ShouldEqual, "tumour, suppressor")
			rank, ok := rows[0].Rank()
			So(ok, ShouldBeTrue)
			So(rank, ShouldEqual, 2)
		})

		Convey("Then only populated sources are listed", func() {
			So(len(rows[0].Sources()), ShouldEqual, 1)
			So(rows[0].Sources()[0].Source, ShouldEqual, "omim")
			So(rows[1].Sources(), ShouldBeEmpty)
		})
	})

	Convey("Given an empty file", t, func() {
		_, err := ParseSummary([]byte("  \n"))

		Convey("Then ErrEmpty is returned", func() {
			So(errors.Is(err, ErrEmpty), ShouldBeTrue)
		})
	})
}

func TestBuildCases(t *testing.T) {
	Convey("Given parsed summary and detailed rows", t, func() {
		detailed, err := ParseDetailed([]byte(detailedCSV))
		So(err, ShouldBeNil)
		summary, err := ParseSummary([]byte(summaryCSV))
		So(err, ShouldBeNil)

		cases := BuildCases(summary, detailed)

		Convey("Then duplicate summary rows collapse", func() {
			So(len(cases), ShouldEqual, 2)
			So(cases[0].PatientID, ShouldEqual, "P1")
			So(cases[1].PatientID, ShouldEqual, "P2")
		})

		Convey("Then candidates are ordered by numeric rank with unparsable ranks last", func() {
			names := []string{}
			for _, g := range cases[0].Genes {
				names = append(names, g.GeneName)
			}
			So(names, ShouldResemble, []string{"BRCA1", "TP53", "ABC"})
		})

		Convey("Then the causal flag follows the true gene", func() {
			So(cases[0].IsCausal("BRCA1"), ShouldBeTrue)
			So(cases[0].IsCausal("TP53"), ShouldBeFalse)
		})
	})
}

func TestParseMetadata(t *testing.T) {
	Convey("Given JSON Lines metadata", t, func() {
		meta, err := ParseMetadata([]byte(`{"patient_id":"P1","positive_phenotypes":["HP:1","HP:2"]}

{"patient_id":"P2","positive_phenotypes":[]}
{"positive_phenotypes":["orphan"]}`))

		Convey("Then records are keyed by patient", func() {
			So(err, ShouldBeNil)
			So(len(meta), ShouldEqual, 2)
			So(meta["P1"].PositivePhenotypes, ShouldResemble, []string{"HP:1", "HP:2"})
		})
	})

	Convey("Given a JSON array", t, func() {
		meta, err := ParseMetadata([]byte("[\n {\"patient_id\":\"P9\",\"positive_phenotypes\":[\"HP:9\"]}\n]"))

		Convey("Then it is accepted as a fallback", func() {
			So(err, ShouldBeNil)
			So(meta["P9"].PositivePhenotypes, ShouldResemble, []string{"HP:9"})
		})
	})

	Convey("Given text that is neither form", t, func() {
		_, err := ParseMetadata([]byte("patient_id,phenotypes"))

		Convey("Then ErrMetadataFormat is returned", func() {
			So(errors.Is(err, ErrMetadataFormat), ShouldBeTrue)
		})
	})
}
