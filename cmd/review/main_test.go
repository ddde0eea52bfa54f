package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/okian/geneva/internal/adapters/http/api"
	"github.com/okian/geneva/internal/adapters/repository"
	service "github.com/okian/geneva/internal/app"
	"github.com/okian/geneva/internal/reviewclient"
	"github.com/okian/geneva/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newTestServer() *httptest.Server {
	at := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	svc := service.New(repository.NewMemory(), service.WithClock(func() time.Time { return at }))
	r := chi.NewRouter()
	api.NewServer(svc).Register(context.Background(), r)
	return httptest.NewServer(r)
}

func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestRootCommand(t *testing.T) {
	Convey("Given the review CLI", t, func() {
		Convey("It registers every subcommand", func() {
			names := map[string]bool{}
			for _, c := range rootCmd.Commands() {
				names[c.Name()] = true
			}
			for _, want := range []string{"health", "import", "export", "sessions"} {
				So(names[want], ShouldBeTrue)
			}
			So(rootCmd.Use, ShouldEqual, "geneva-review")
		})

		Convey("Import requires its dataset flags", func() {
			for _, name := range []string{"detailed", "summary"} {
				f := importCmd.Flags().Lookup(name)
				So(f, ShouldNotBeNil)
				So(f.Annotations, ShouldContainKey, "cobra_annotation_bash_completion_one_required_flag")
			}
			for _, name := range []string{"evaluator", "name", "state"} {
				f := importCmd.Flags().Lookup(name)
				So(f, ShouldNotBeNil)
				So(f.Annotations, ShouldNotContainKey, "cobra_annotation_bash_completion_one_required_flag")
			}
			So(importCmd.Flags().Lookup("export-scope").DefValue, ShouldEqual, "evaluator")
		})

		Convey("Export defaults to the working directory", func() {
			So(exportCmd.Flags().Lookup("to").DefValue, ShouldEqual, ".")
		})
	})
}

func TestCommands_AgainstServer(t *testing.T) {
	Convey("Given a running server", t, func() {
		srv := newTestServer()
		defer srv.Close()
		dir := t.TempDir()
		write := func(name, content string) string {
			p := filepath.Join(dir, name)
			So(os.WriteFile(p, []byte(content), 0o600), ShouldBeNil)
			return p
		}
		detailed := write("detailed.csv", "patient_id,gene_name,final_rank\nP1,BRCA1,1\n")
		summary := write("summary.csv", "patient_id,true_gene\nP1,BRCA1\n")
		evals := write("evals.jsonl", `{"patient_id":"P1","gene_name":"BRCA1","confidence":4}`+"\n")

		Convey("health succeeds", func() {
			So(execute("health", "--url", srv.URL), ShouldBeNil)
		})

		Convey("import then export writes the evaluator CSV", func() {
			So(execute("import", "--url", srv.URL,
				"--evaluator", "dr_a", "--name", "Dr A",
				"--detailed", detailed, "--summary", summary,
				"--evaluations", evals, "--workers", "2"), ShouldBeNil)

			So(execute("sessions", "--url", srv.URL, "--evaluator", "dr_a"), ShouldBeNil)

			out := filepath.Join(dir, "exports")
			So(os.MkdirAll(out, 0o750), ShouldBeNil)
			So(execute("export", "--url", srv.URL, "--evaluator", "dr_a", "--to", out), ShouldBeNil)

			b, err := os.ReadFile(filepath.Join(out, "evaluations_dr_a_2025-03-09.csv"))
			So(err, ShouldBeNil)
			So(strings.Count(string(b), "\n"), ShouldEqual, 1)
		})

		Convey("an unknown export scope is rejected", func() {
			err := execute("import", "--url", srv.URL,
				"--evaluator", "dr_a", "--name", "Dr A",
				"--detailed", detailed, "--summary", summary,
				"--export-scope", "team")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "--export-scope")
			importCfg.ExportScope = "evaluator"
		})

		Convey("a state file carries the evaluator between commands", func() {
			state := filepath.Join(dir, "state.json")
			So(execute("import", "--url", srv.URL,
				"--evaluator", "dr_b", "--name", "Dr B",
				"--detailed", detailed, "--summary", summary,
				"--evaluations", evals, "--state", state), ShouldBeNil)

			importCfg.EvaluatorID, importCfg.Name = "", ""
			So(execute("import", "--url", srv.URL,
				"--detailed", detailed, "--summary", summary,
				"--evaluations", evals, "--state", state), ShouldBeNil)

			sessionsEvaluator = ""
			So(execute("sessions", "--url", srv.URL, "--state", state), ShouldBeNil)

			snap, err := reviewclient.Restore(state)
			So(err, ShouldBeNil)
			So(snap.EvaluatorID, ShouldEqual, "dr_b")
			sessions, err := reviewclient.NewClient(srv.URL).ListSessions(context.Background(), "dr_b")
			So(err, ShouldBeNil)
			So(sessions, ShouldHaveLength, 1)
			So(sessions[0].SessionID, ShouldEqual, snap.SessionID)

			importCfg.StatePath, sessionsState = "", ""
		})

		Convey("sessions without an evaluator or state fails", func() {
			sessionsEvaluator, sessionsState = "", ""
			err := execute("sessions", "--url", srv.URL)
			So(errors.Is(err, reviewclient.ErrMissingIdentity), ShouldBeTrue)
		})
	})

	Convey("Given no server", t, func() {
		srv := newTestServer()
		url := srv.URL
		srv.Close()

		So(execute("health", "--url", url, "--timeout", "1s"), ShouldNotBeNil)
	})
}
