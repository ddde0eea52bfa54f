package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	service "github.com/okian/geneva/internal/app"
	"github.com/okian/geneva/internal/adapters/repository"
	"github.com/okian/geneva/internal/domain/fingerprint"
	"github.com/okian/geneva/internal/domain/model"
	"github.com/okian/geneva/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

const (
	detailed = "patient_id,gene_name,final_rank\nP1,BRCA1,1\nP1,TP53,2\n"
	summary  = "patient_id,true_gene\nP1,BRCA1\n"
)

func newService() (*service.Service, repository.Store) {
	st := repository.NewMemory()
	at := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	return service.New(st, service.WithClock(func() time.Time { return at })), st
}

func rated(patient, gene string, confidence int) model.EvaluationInput {
	return model.EvaluationInput{
		PatientID:  patient,
		GeneName:   gene,
		IsCausal:   gene == "BRCA1",
		FinalRank:  model.IntOf(1),
		Confidence: model.IntOf(confidence),
		Notes:      `plain "quoted", note`,
	}
}

func TestService_Login(t *testing.T) {
	Convey("Given a service over an empty store", t, func() {
		ctx := context.Background()
		svc, _ := newService()

		Convey("When an evaluator logs in", func() {
			ev, err := svc.Login(ctx, "E1", "Alice", "alice@example.org")

			Convey("Then the evaluator is created", func() {
				So(err, ShouldBeNil)
				So(ev.EvaluatorID, ShouldEqual, "E1")
				So(ev.Name, ShouldEqual, "Alice")
				So(ev.ID, ShouldBeGreaterThan, 0)
			})

			Convey("And a second login keeps the first name", func() {
				again, err := svc.Login(ctx, "E1", "Mallory", "")
				So(err, ShouldBeNil)
				So(again.Name, ShouldEqual, "Alice")
				So(*again.Email, ShouldEqual, "alice@example.org")
				So(again.ID, ShouldEqual, ev.ID)
			})
		})

		Convey("When the name is missing", func() {
			_, err := svc.Login(ctx, "E1", " ", "")

			Convey("Then a validation error is returned", func() {
				So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "name")
			})
		})
	})
}

func TestService_ResolveSession(t *testing.T) {
	Convey("Given a logged in evaluator", t, func() {
		ctx := context.Background()
		svc, st := newService()
		_, err := svc.Login(ctx, "E1", "Alice", "")
		So(err, ShouldBeNil)

		req := service.SessionRequest{
			EvaluatorID:     "E1",
			DetailedContent: detailed,
			SummaryContent:  summary,
			Filenames:       model.Filenames{Detailed: "d.csv", Summary: "s.csv", Metadata: "m.jsonl"},
		}

		Convey("When the datasets are uploaded for the first time", func() {
			res, err := svc.ResolveSession(ctx, req)

			Convey("Then a session keyed by evaluator and fingerprint is created", func() {
				So(err, ShouldBeNil)
				So(res.Created, ShouldBeTrue)
				So(res.Session.SessionID, ShouldEqual, "E1_"+fingerprint.Compute(detailed, summary))
				So(res.Session.FilesHash, ShouldEqual, fingerprint.Compute(detailed, summary))
				So(res.Evaluations, ShouldBeEmpty)
			})

			Convey("And re-uploading with different metadata resumes it", func() {
				other := req
				other.Filenames = model.Filenames{Detailed: "renamed.csv", Metadata: "new.jsonl"}
				again, err := svc.ResolveSession(ctx, other)
				So(err, ShouldBeNil)
				So(again.Created, ShouldBeFalse)
				So(again.Session.SessionID, ShouldEqual, res.Session.SessionID)
				So(again.Session.Filenames.Detailed, ShouldEqual, "d.csv")

				sessions, err := st.ListSessions(ctx, "E1")
				So(err, ShouldBeNil)
				So(sessions, ShouldHaveLength, 1)
			})

			Convey("And prior evaluations are returned on resume", func() {
				_, err := svc.SaveEvaluation(ctx, res.Session.SessionID, rated("P1", "BRCA1", 4))
				So(err, ShouldBeNil)

				again, err := svc.ResolveSession(ctx, req)
				So(err, ShouldBeNil)
				So(again.Evaluations, ShouldHaveLength, 1)
				So(*again.Evaluations[0].Confidence, ShouldEqual, 4)
			})
		})

		Convey("When another evaluator uploads identical content", func() {
			_, err := svc.Login(ctx, "E2", "Bob", "")
			So(err, ShouldBeNil)
			first, err := svc.ResolveSession(ctx, req)
			So(err, ShouldBeNil)
			other := req
			other.EvaluatorID = "E2"
			second, err := svc.ResolveSession(ctx, other)

			Convey("Then each gets a distinct session", func() {
				So(err, ShouldBeNil)
				So(second.Session.SessionID, ShouldNotEqual, first.Session.SessionID)
				So(second.Session.FilesHash, ShouldEqual, first.Session.FilesHash)
			})
		})

		Convey("When the evaluator is unknown", func() {
			other := req
			other.EvaluatorID = "nobody"
			_, err := svc.ResolveSession(ctx, other)

			Convey("Then evaluator not found is returned", func() {
				So(errors.Is(err, service.ErrEvaluatorNotFound), ShouldBeTrue)
			})
		})

		Convey("When content is missing", func() {
			other := req
			other.SummaryContent = ""
			_, err := svc.ResolveSession(ctx, other)

			Convey("Then a validation error names the field", func() {
				So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "summaryContent")
			})
		})

		Convey("When many uploads of the same content race", func() {
			var wg sync.WaitGroup
			ids := make([]string, 16)
			errs := make([]error, 16)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := svc.ResolveSession(ctx, req)
					errs[i] = err
					if err == nil {
						ids[i] = res.Session.SessionID
					}
				}(i)
			}
			wg.Wait()

			Convey("Then all resolve to one session", func() {
				for i := range ids {
					So(errs[i], ShouldBeNil)
					So(ids[i], ShouldEqual, ids[0])
				}
				sessions, err := st.ListSessions(ctx, "E1")
				So(err, ShouldBeNil)
				So(sessions, ShouldHaveLength, 1)
			})
		})
	})
}

func TestService_SaveEvaluation(t *testing.T) {
	Convey("Given a resolved session", t, func() {
		ctx := context.Background()
		svc, _ := newService()
		_, err := svc.Login(ctx, "E1", "Alice", "")
		So(err, ShouldBeNil)
		res, err := svc.ResolveSession(ctx, service.SessionRequest{
			EvaluatorID: "E1", DetailedContent: detailed, SummaryContent: summary,
		})
		So(err, ShouldBeNil)
		sid := res.Session.SessionID

		Convey("When the same triple is saved twice", func() {
			id1, err := svc.SaveEvaluation(ctx, sid, rated("P1", "BRCA1", 4))
			So(err, ShouldBeNil)
			first, err := svc.ListEvaluations(ctx, sid)
			So(err, ShouldBeNil)
			id2, err := svc.SaveEvaluation(ctx, sid, rated("P1", "BRCA1", 2))
			So(err, ShouldBeNil)
			second, err := svc.ListEvaluations(ctx, sid)
			So(err, ShouldBeNil)

			Convey("Then one row holds the second payload", func() {
				So(id2, ShouldEqual, id1)
				So(second, ShouldHaveLength, 1)
				So(*second[0].Confidence, ShouldEqual, 2)
				So(second[0].CreatedAt, ShouldEqual, first[0].CreatedAt)
				So(second[0].UpdatedAt.After(first[0].UpdatedAt), ShouldBeTrue)
			})
		})

		Convey("When the session does not exist", func() {
			_, err := svc.SaveEvaluation(ctx, "E1_missing", rated("P1", "BRCA1", 4))

			Convey("Then session not found is returned", func() {
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			})
		})

		Convey("When identity fields are missing", func() {
			_, err := svc.SaveEvaluation(ctx, sid, model.EvaluationInput{PatientID: "P1"})

			Convey("Then a validation error names gene_name", func() {
				So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "gene_name")
			})
		})

		Convey("When one triple is saved concurrently", func() {
			var wg sync.WaitGroup
			for i := 1; i <= 5; i++ {
				wg.Add(1)
				go func(c int) {
					defer wg.Done()
					_, _ = svc.SaveEvaluation(ctx, sid, rated("P1", "TP53", c))
				}(i)
			}
			wg.Wait()
			rows, err := svc.ListEvaluations(ctx, sid)

			Convey("Then exactly one row exists", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(*rows[0].Confidence, ShouldBeBetweenOrEqual, 1, 5)
			})
		})

		Convey("When fetching the session view", func() {
			_, err := svc.SaveEvaluation(ctx, sid, rated("P1", "BRCA1", 3))
			So(err, ShouldBeNil)
			view, err := svc.GetSession(ctx, sid)

			Convey("Then it includes evaluations", func() {
				So(err, ShouldBeNil)
				So(view.Session.SessionID, ShouldEqual, sid)
				So(view.Evaluations, ShouldHaveLength, 1)
			})

			Convey("And an unknown session is not found", func() {
				_, err := svc.GetSession(ctx, "UNKNOWN")
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Export(t *testing.T) {
	Convey("Given stored evaluations", t, func() {
		ctx := context.Background()
		svc, _ := newService()
		_, err := svc.Login(ctx, "E1", "Alice", "")
		So(err, ShouldBeNil)
		res, err := svc.ResolveSession(ctx, service.SessionRequest{
			EvaluatorID: "E1", DetailedContent: detailed, SummaryContent: summary,
			Filenames: model.Filenames{Detailed: "d.csv", Summary: "s.csv"},
		})
		So(err, ShouldBeNil)
		for i, gene := range []string{"BRCA1", "TP53"} {
			_, err := svc.SaveEvaluation(ctx, res.Session.SessionID, rated("P1", gene, i+1))
			So(err, ShouldBeNil)
		}

		Convey("When exporting one evaluator twice", func() {
			var a, b bytes.Buffer
			name, err := svc.ExportEvaluator(ctx, &a, "E1")
			So(err, ShouldBeNil)
			_, err = svc.ExportEvaluator(ctx, &b, "E1")
			So(err, ShouldBeNil)

			Convey("Then the output is byte identical and parses as CSV", func() {
				So(name, ShouldEqual, "evaluations_E1_2025-03-09.csv")
				So(a.String(), ShouldEqual, b.String())
				records, err := csv.NewReader(&a).ReadAll()
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 3)
				So(records[1][2], ShouldEqual, "TP53") // newest first
				So(records[1][12], ShouldEqual, `plain "quoted", note`)
			})
		})

		Convey("When exporting everything", func() {
			var buf bytes.Buffer
			name, err := svc.ExportAll(ctx, &buf)

			Convey("Then rows carry evaluator and filenames", func() {
				So(err, ShouldBeNil)
				So(name, ShouldEqual, "all_evaluations_2025-03-09.csv")
				records, err := csv.NewReader(&buf).ReadAll()
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 3)
				So(records[1][0], ShouldEqual, "E1")
				So(records[1][14], ShouldEqual, "d.csv")
				So(records[1][15], ShouldEqual, "s.csv")
			})
		})

		Convey("When reading stats", func() {
			st, err := svc.Stats(ctx)

			Convey("Then counts reflect the store", func() {
				So(err, ShouldBeNil)
				So(fmt.Sprint(st.Evaluators, st.Sessions, st.Evaluations), ShouldEqual, "1 1 2")
			})
		})
	})
}
