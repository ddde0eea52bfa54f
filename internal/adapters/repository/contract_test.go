package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/geneva/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fixedClock steps a deterministic clock by one second per call.
func fixedClock() func() time.Time {
	var (
		mu sync.Mutex
		t  = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, name string, open func(t *testing.T) Store) {
	ctx := context.Background()
	files := model.Filenames{Detailed: "detailed.csv", Summary: "summary.csv"}

	Convey(name+": evaluators are first-write-wins", t, func() {
		st := open(t)
		So(st.CreateEvaluator(ctx, "E1", "Alice", "alice@example.org"), ShouldBeNil)
		So(st.CreateEvaluator(ctx, "E1", "Mallory", ""), ShouldBeNil)

		e, err := st.GetEvaluator(ctx, "E1")
		So(err, ShouldBeNil)
		So(e, ShouldNotBeNil)
		So(e.Name, ShouldEqual, "Alice")
		So(e.Email, ShouldNotBeNil)
		So(*e.Email, ShouldEqual, "alice@example.org")

		Convey("And an evaluator without email has none", func() {
			So(st.CreateEvaluator(ctx, "E2", "Bob", ""), ShouldBeNil)
			bob, err := st.GetEvaluator(ctx, "E2")
			So(err, ShouldBeNil)
			So(bob.Email, ShouldBeNil)
		})

		Convey("And an unknown evaluator is absent without error", func() {
			missing, err := st.GetEvaluator(ctx, "nobody")
			So(err, ShouldBeNil)
			So(missing, ShouldBeNil)
		})
	})

	Convey(name+": sessions are unique per key", t, func() {
		st := open(t)
		So(st.CreateEvaluator(ctx, "E1", "Alice", ""), ShouldBeNil)

		sess, err := st.CreateSession(ctx, "E1_abc", "E1", "abc", files)
		So(err, ShouldBeNil)
		So(sess.SessionID, ShouldEqual, "E1_abc")

		Convey("Then a duplicate insert reports a conflict", func() {
			_, err := st.CreateSession(ctx, "E1_abc", "E1", "abc", model.Filenames{})
			So(errors.Is(err, ErrConflict), ShouldBeTrue)
		})

		Convey("Then lookup by fingerprint returns it with its filenames", func() {
			found, err := st.FindSessionByFingerprint(ctx, "E1", "abc")
			So(err, ShouldBeNil)
			So(found, ShouldNotBeNil)
			So(found.SessionID, ShouldEqual, "E1_abc")
			So(found.Filenames, ShouldResemble, files)
			So(found.CreatedAt.Equal(sess.CreatedAt), ShouldBeTrue)
		})

		Convey("Then another evaluator's fingerprint does not match", func() {
			found, err := st.FindSessionByFingerprint(ctx, "E2", "abc")
			So(err, ShouldBeNil)
			So(found, ShouldBeNil)
		})

		Convey("Then unknown keys are absent", func() {
			got, err := st.GetSession(ctx, "UNKNOWN")
			So(err, ShouldBeNil)
			So(got, ShouldBeNil)
		})

		Convey("Then listing is newest first", func() {
			_, err := st.CreateSession(ctx, "E1_def", "E1", "def", model.Filenames{})
			So(err, ShouldBeNil)
			list, err := st.ListSessions(ctx, "E1")
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 2)
			So(list[0].SessionID, ShouldEqual, "E1_def")
		})
	})

	Convey(name+": evaluations upsert on (session, patient, gene)", t, func() {
		st := open(t)
		So(st.CreateEvaluator(ctx, "E1", "Alice", ""), ShouldBeNil)
		_, err := st.CreateSession(ctx, "E1_abc", "E1", "abc", files)
		So(err, ShouldBeNil)

		first := model.EvaluationInput{
			PatientID: "P1", GeneName: "BRCA1", IsCausal: true,
			FinalRank: model.IntOf(1), Traceability: model.StringOf("high"),
			Confidence: model.IntOf(4), PreferredSource: model.SourceTags{"omim"}, Notes: "first",
		}
		id1, err := st.UpsertEvaluation(ctx, "E1_abc", first)
		So(err, ShouldBeNil)
		before, err := st.ListEvaluationsForSession(ctx, "E1_abc")
		So(err, ShouldBeNil)
		So(len(before), ShouldEqual, 1)

		second := model.EvaluationInput{PatientID: "P1", GeneName: "BRCA1", Confidence: model.IntOf(2), Notes: `said "no"`}
		id2, err := st.UpsertEvaluation(ctx, "E1_abc", second)
		So(err, ShouldBeNil)

		after, err := st.ListEvaluationsForSession(ctx, "E1_abc")
		So(err, ShouldBeNil)

		Convey("Then one row holds the second payload in full", func() {
			So(id2, ShouldEqual, id1)
			So(len(after), ShouldEqual, 1)
			got := after[0]
			So(*got.Confidence, ShouldEqual, 2)
			So(got.IsCausal, ShouldBeFalse)
			So(got.FinalRank, ShouldBeNil)
			So(got.Traceability, ShouldBeNil)
			So(got.PreferredSource, ShouldEqual, "")
			So(got.Notes, ShouldEqual, `said "no"`)
		})

		Convey("Then created_at is kept and updated_at advances", func() {
			So(after[0].CreatedAt.Equal(before[0].CreatedAt), ShouldBeTrue)
			So(after[0].UpdatedAt.After(before[0].UpdatedAt), ShouldBeTrue)
		})

		Convey("Then the count reflects one row", func() {
			n, err := st.CountEvaluations(ctx, "E1_abc")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})
	})

	Convey(name+": concurrent saves of one triple leave one complete row", t, func() {
		st := open(t)
		So(st.CreateEvaluator(ctx, "E1", "Alice", ""), ShouldBeNil)
		_, err := st.CreateSession(ctx, "E1_abc", "E1", "abc", files)
		So(err, ShouldBeNil)

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := st.UpsertEvaluation(ctx, "E1_abc", model.EvaluationInput{
					PatientID: "P1", GeneName: "TP53",
					Confidence: model.IntOf(i), Notes: fmt.Sprintf("writer-%d", i),
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			So(err, ShouldBeNil)
		}

		rows, err := st.ListEvaluationsForSession(ctx, "E1_abc")
		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 1)
		So(rows[0].Notes, ShouldEqual, fmt.Sprintf("writer-%d", *rows[0].Confidence))
	})

	Convey(name+": evaluator and global listings", t, func() {
		st := open(t)
		So(st.CreateEvaluator(ctx, "E1", "Alice", ""), ShouldBeNil)
		So(st.CreateEvaluator(ctx, "E2", "Bob", ""), ShouldBeNil)
		_, err := st.CreateSession(ctx, "E1_abc", "E1", "abc", files)
		So(err, ShouldBeNil)
		_, err = st.CreateSession(ctx, "E2_abc", "E2", "abc", model.Filenames{Detailed: "d2.csv"})
		So(err, ShouldBeNil)

		for _, step := range []struct{ session, gene string }{
			{"E1_abc", "A"}, {"E2_abc", "B"}, {"E1_abc", "C"}, {"E1_abc", "A"},
		} {
			_, err := st.UpsertEvaluation(ctx, step.session, model.EvaluationInput{PatientID: "P1", GeneName: step.gene})
			So(err, ShouldBeNil)
		}

		Convey("Then an evaluator sees only their rows, newest update first", func() {
			rows, err := st.ListEvaluationsForEvaluator(ctx, "E1")
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0].GeneName, ShouldEqual, "A")
			So(rows[1].GeneName, ShouldEqual, "C")
		})

		Convey("Then the global listing joins evaluator and filenames", func() {
			rows, err := st.ListAllEvaluations(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 3)
			So(rows[0].GeneName, ShouldEqual, "A")
			So(rows[0].EvaluatorID, ShouldEqual, "E1")
			So(rows[0].DetailedFilename, ShouldEqual, "detailed.csv")
			So(rows[2].EvaluatorID, ShouldEqual, "E2")
			So(rows[2].SummaryFilename, ShouldEqual, "")
		})

		Convey("Then stats count every kind", func() {
			stats, err := st.Stats(ctx)
			So(err, ShouldBeNil)
			So(stats, ShouldResemble, Stats{Evaluators: 2, Sessions: 2, Evaluations: 3})
		})
	})
}
