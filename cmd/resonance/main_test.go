package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/metrics"
)

const (
	intentText  = "Find consciousness researchers for collaboration"
	relatedText = "I'm working on consciousness research and looking for collaborators"
)

func execute(args ...string) (string, error) {
	color.NoColor = true
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_Workflow(t *testing.T) {
	Convey("Given an empty data directory", t, func() {
		dir := t.TempDir()
		run := func(args ...string) (string, error) {
			return execute(append([]string{"--data-dir", dir}, args...)...)
		}

		Convey("When two fingerprints are registered", func() {
			out, err := run("--json", "register", "--owner", "alice", "--tag", "research", "--charge", "0.9", intentText)
			So(err, ShouldBeNil)
			var alice model.Fingerprint
			So(json.Unmarshal([]byte(out), &alice), ShouldBeNil)

			_, err = run("register", "--owner", "bob", "--tag", "collaboration", intentText)
			So(err, ShouldBeNil)

			Convey("Then the first carries the given fields", func() {
				So(alice.ID, ShouldStartWith, "fp_")
				So(alice.Owner, ShouldEqual, "alice")
				So(alice.Charge, ShouldEqual, 0.9)
				So(alice.Tags, ShouldResemble, []string{"research"})
				So(alice.Metadata.Source, ShouldEqual, model.DefaultSource)
			})

			Convey("Then both are listed and persisted across invocations", func() {
				out, err := run("--json", "list")
				So(err, ShouldBeNil)
				var fps []model.Fingerprint
				So(json.Unmarshal([]byte(out), &fps), ShouldBeNil)
				So(fps, ShouldHaveLength, 2)

				out, err = run("list", "--owner", "alice")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, alice.ID)
				So(out, ShouldNotContainSubstring, "bob")
			})

			Convey("Then a pulse resonates with both and shows up as a convergence", func() {
				out, err := run("--json", "pulse", "--source", "cli-test", relatedText)
				So(err, ShouldBeNil)
				var cmp model.Comparison
				So(json.Unmarshal([]byte(out), &cmp), ShouldBeNil)
				So(cmp.ID, ShouldStartWith, "pulse_")
				So(cmp.SourceLabel, ShouldEqual, "cli-test")
				So(cmp.InputType, ShouldEqual, model.DefaultInputType)
				So(cmp.Matches, ShouldHaveLength, 2)

				shown, err := run("show", cmp.ID)
				So(err, ShouldBeNil)
				So(shown, ShouldContainSubstring, cmp.ID)
				So(shown, ShouldContainSubstring, string(cmp.Matches[0].Classification))

				out, err = run("--json", "convergences")
				So(err, ShouldBeNil)
				var found []model.Comparison
				So(json.Unmarshal([]byte(out), &found), ShouldBeNil)
				So(found, ShouldHaveLength, 1)
				So(found[0].ID, ShouldEqual, cmp.ID)

				out, err = run("convergences", "--min-matches", "3")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "no convergences")

				out, err = run("--json", "convergences", "--min-strength", "0", "--min-matches", "1")
				So(err, ShouldBeNil)
				So(json.Unmarshal([]byte(out), &found), ShouldBeNil)
				So(found, ShouldHaveLength, 1)

				_, err = run("convergences", "--min-matches", "0")
				So(err, ShouldNotBeNil)
				_, err = run("convergences", "--min-strength", "1.5")
				So(err, ShouldNotBeNil)

				out, err = run("convergences", "--since", time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "no convergences")
			})

			Convey("Then archiving removes the fingerprint from active listings", func() {
				out, err := run("archive", alice.ID)
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "archived "+alice.ID)

				out, err = run("--json", "list", "--active")
				So(err, ShouldBeNil)
				var fps []model.Fingerprint
				So(json.Unmarshal([]byte(out), &fps), ShouldBeNil)
				So(fps, ShouldHaveLength, 1)
				So(fps[0].Owner, ShouldEqual, "bob")

				shown, err := run("show", alice.ID)
				So(err, ShouldBeNil)
				So(shown, ShouldContainSubstring, "archived")
			})
		})

		Convey("When archiving an unknown id", func() {
			out, err := run("archive", "fp_missing")

			Convey("Then it reports not found without failing", func() {
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "not found fp_missing")
			})
		})

		Convey("When showing an unknown record", func() {
			_, err := run("show", "pulse_missing")

			Convey("Then the command fails", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When nothing has been registered", func() {
			out, err := run("list")

			Convey("Then the listing says so", func() {
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "no fingerprints")
			})
		})
	})
}

func TestCLI_Configuration(t *testing.T) {
	Convey("Given a YAML config selecting the sqlite backend", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "resonance.yaml")
		body := "store_backend: sqlite\nid_scheme: uuid\ndata_dir: " + dir + "\nlog_format: json\n"
		So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)

		Convey("When a fingerprint is registered through it", func() {
			out, err := execute("--config", path, "--json", "register", "--owner", "carol", intentText)

			Convey("Then the uuid scheme and the sqlite file are used", func() {
				So(err, ShouldBeNil)
				var fp model.Fingerprint
				So(json.Unmarshal([]byte(out), &fp), ShouldBeNil)
				So(len(strings.TrimPrefix(fp.ID, "fp_")), ShouldEqual, 36)
				_, statErr := os.Stat(filepath.Join(dir, "resonance.db"))
				So(statErr, ShouldBeNil)
			})
		})
	})

	Convey("Given a YAML config that turns metrics off", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "resonance.yaml")
		body := "data_dir: " + dir + "\nmetrics_enabled: false\nmetrics_refresh_interval: 2s\n"
		So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
		defer metrics.Configure(metrics.WithMetricsEnabled(true), metrics.WithRefreshInterval(10*time.Second))

		_, err := execute("--config", path, "list")

		Convey("Then recording is disabled with the configured refresh interval", func() {
			So(err, ShouldBeNil)
			So(metrics.Enabled(), ShouldBeFalse)
			So(metrics.RefreshInterval(), ShouldEqual, 2*time.Second)
		})
	})

	Convey("Given an invalid backend flag", t, func() {
		_, err := execute("--data-dir", t.TempDir(), "--backend", "postgres", "list")

		Convey("Then setup fails before the command runs", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "store_backend")
		})
	})

	Convey("Given register without an owner", t, func() {
		_, err := execute("--data-dir", t.TempDir(), "register", intentText)

		Convey("Then cobra rejects the missing flag", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseSince(t *testing.T) {
	Convey("Given a reference time", t, func() {
		now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

		Convey("Then RFC3339 and durations are accepted", func() {
			ts, err := parseSince("2024-05-01T00:00:00Z", now)
			So(err, ShouldBeNil)
			So(ts, ShouldEqual, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

			ts, err = parseSince("24h", now)
			So(err, ShouldBeNil)
			So(ts, ShouldEqual, now.Add(-24*time.Hour))
		})

		Convey("Then anything else is rejected", func() {
			_, err := parseSince("yesterday", now)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTruncate(t *testing.T) {
	Convey("Given long text", t, func() {
		Convey("Then it is cut on runes with an ellipsis", func() {
			So(truncate("short", 10), ShouldEqual, "short")
			So(truncate("ééééé", 3), ShouldEqual, "éé…")
		})
	})
}
