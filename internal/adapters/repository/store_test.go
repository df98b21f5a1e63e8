package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/resonance/internal/adapters/repository"
	"github.com/okian/resonance/internal/domain/model"
)

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleFingerprint(id string) *model.Fingerprint {
	return &model.Fingerprint{
		ID:         id,
		Owner:      "alice",
		IntentText: "Find consciousness researchers for collaboration",
		Tags:       []string{"research", "collaboration"},
		Charge:     0.9,
		CreatedAt:  baseTime,
		Metadata: model.Metadata{
			Source:   model.DefaultSource,
			Priority: model.DefaultPriority,
			Category: model.DefaultCategory,
		},
	}
}

func sampleComparison(id string) *model.Comparison {
	published := baseTime.Add(-time.Hour)
	return &model.Comparison{
		ID:          id,
		InputText:   "consciousness research collaborators",
		InputType:   model.DefaultInputType,
		Timestamp:   baseTime.Add(time.Minute),
		SourceLabel: "inbox",
		PublishedAt: &published,
		Matches: []model.Match{{
			FingerprintID:  "fp_1",
			Strength:       0.73,
			Classification: model.StrongResonance,
			Evidence: model.Evidence{
				Similarity:       0.45,
				ChargeMultiplier: 1.45,
				TagBonus:         0.1,
				MatchedTags:      []string{"research"},
				SharedTerms:      []string{"consciousness"},
			},
		}},
	}
}

type storeFactory func(dir string) (repository.Store, error)

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		repository.BackendFile: func(dir string) (repository.Store, error) {
			return repository.NewFileStore(dir, repository.WithFsync(false))
		},
		repository.BackendSQLite: func(dir string) (repository.Store, error) {
			return repository.NewSQLiteStore(context.Background(), filepath.Join(dir, repository.SQLiteFile))
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, open := range backends() {
		Convey("Given an empty "+name+" store", t, func() {
			ctx := context.Background()
			dir := t.TempDir()
			store, err := open(dir)
			So(err, ShouldBeNil)
			So(store.Backend(), ShouldEqual, name)

			snap, err := store.Load(ctx)
			So(err, ShouldBeNil)
			So(snap.Fingerprints, ShouldBeEmpty)
			So(snap.Comparisons, ShouldBeEmpty)

			Convey("When fingerprints and comparisons are written and reloaded", func() {
				first := sampleFingerprint("fp_1")
				second := sampleFingerprint("fp_2")
				second.Tags = nil
				So(store.PutFingerprint(ctx, first), ShouldBeNil)
				So(store.PutFingerprint(ctx, second), ShouldBeNil)

				matched := baseTime.Add(2 * time.Minute)
				archived := baseTime.Add(3 * time.Minute)
				first.LastSignificantMatch = &matched
				first.Metadata.Archived = true
				first.Metadata.ArchivedAt = &archived
				So(store.PutFingerprint(ctx, first), ShouldBeNil)

				So(store.AppendComparison(ctx, sampleComparison("pulse_1")), ShouldBeNil)
				So(store.AppendComparison(ctx, sampleComparison("pulse_2")), ShouldBeNil)
				So(store.Close(), ShouldBeNil)

				reopened, err := open(dir)
				So(err, ShouldBeNil)
				defer func() { _ = reopened.Close() }()
				snap, err := reopened.Load(ctx)
				So(err, ShouldBeNil)

				Convey("Then insertion order and every field survive", func() {
					So(len(snap.Fingerprints), ShouldEqual, 2)
					So(snap.Fingerprints[0].ID, ShouldEqual, "fp_1")
					So(snap.Fingerprints[1].ID, ShouldEqual, "fp_2")

					got := snap.Fingerprints[0]
					So(got.Owner, ShouldEqual, "alice")
					So(got.Tags, ShouldResemble, []string{"research", "collaboration"})
					So(got.Charge, ShouldEqual, 0.9)
					So(got.CreatedAt.Equal(baseTime), ShouldBeTrue)
					So(got.LastSignificantMatch, ShouldNotBeNil)
					So(got.LastSignificantMatch.Equal(matched), ShouldBeTrue)
					So(got.Metadata.Archived, ShouldBeTrue)
					So(got.Metadata.ArchivedAt.Equal(archived), ShouldBeTrue)
					So(got.Metadata.Source, ShouldEqual, model.DefaultSource)
					So(snap.Fingerprints[1].LastSignificantMatch, ShouldBeNil)

					So(len(snap.Comparisons), ShouldEqual, 2)
					So(snap.Comparisons[0].ID, ShouldEqual, "pulse_1")
					So(snap.Comparisons[1].ID, ShouldEqual, "pulse_2")
					c := snap.Comparisons[0]
					So(c.SourceLabel, ShouldEqual, "inbox")
					So(c.PublishedAt.Equal(baseTime.Add(-time.Hour)), ShouldBeTrue)
					So(c.Matches, ShouldHaveLength, 1)
					So(c.Matches[0].Strength, ShouldEqual, 0.73)
					So(c.Matches[0].Classification, ShouldEqual, model.StrongResonance)
					So(c.Matches[0].Evidence.MatchedTags, ShouldResemble, []string{"research"})
				})
			})
		})
	}
}

func TestOpen(t *testing.T) {
	Convey("Given the store factory", t, func() {
		ctx := context.Background()
		dir := t.TempDir()

		Convey("Then the default backend is the file store", func() {
			s, err := repository.Open(ctx, "", dir, "")
			So(err, ShouldBeNil)
			So(s.Backend(), ShouldEqual, repository.BackendFile)
			So(s.Close(), ShouldBeNil)
		})

		Convey("Then sqlite defaults its path into the data dir", func() {
			s, err := repository.Open(ctx, repository.BackendSQLite, dir, "")
			So(err, ShouldBeNil)
			So(s.Backend(), ShouldEqual, repository.BackendSQLite)
			So(s.Close(), ShouldBeNil)
			_, statErr := os.Stat(filepath.Join(dir, repository.SQLiteFile))
			So(statErr, ShouldBeNil)
		})

		Convey("Then unknown backends are rejected", func() {
			_, err := repository.Open(ctx, "postgres", dir, "")
			So(errors.Is(err, repository.ErrUnknownBackend), ShouldBeTrue)
		})
	})
}

func TestFileStoreRecovery(t *testing.T) {
	Convey("Given a file store directory", t, func() {
		ctx := context.Background()
		dir := t.TempDir()

		Convey("When the fingerprint document is corrupt", func() {
			So(os.WriteFile(filepath.Join(dir, repository.FingerprintsFile), []byte("{not json"), 0o644), ShouldBeNil)
			store, err := repository.NewFileStore(dir)
			So(err, ShouldBeNil)
			defer func() { _ = store.Close() }()

			snap, err := store.Load(ctx)

			Convey("Then it loads empty and stays writable", func() {
				So(err, ShouldBeNil)
				So(snap.Fingerprints, ShouldBeEmpty)
				So(store.PutFingerprint(ctx, sampleFingerprint("fp_1")), ShouldBeNil)
			})
		})

		Convey("When the comparison log holds a bad line and a torn tail", func() {
			good := `{"id":"pulse_1","input_text":"a","input_type":"text","timestamp":"2026-05-01T12:00:00Z","source_label":"direct","matches":[]}`
			content := good + "\n" + "garbage line\n" + `{"id":"pulse_2","input_te`
			path := filepath.Join(dir, repository.ComparisonsFile)
			So(os.WriteFile(path, []byte(content), 0o644), ShouldBeNil)

			store, err := repository.NewFileStore(dir, repository.WithFsync(false))
			So(err, ShouldBeNil)
			snap, err := store.Load(ctx)
			So(err, ShouldBeNil)

			Convey("Then only readable records are kept and the log is compacted", func() {
				So(snap.Comparisons, ShouldHaveLength, 1)
				So(snap.Comparisons[0].ID, ShouldEqual, "pulse_1")

				So(store.AppendComparison(ctx, sampleComparison("pulse_3")), ShouldBeNil)
				So(store.Close(), ShouldBeNil)

				again, err := repository.NewFileStore(dir)
				So(err, ShouldBeNil)
				defer func() { _ = again.Close() }()
				snap, err := again.Load(ctx)
				So(err, ShouldBeNil)
				So(snap.Comparisons, ShouldHaveLength, 2)
				So(snap.Comparisons[1].ID, ShouldEqual, "pulse_3")
			})
		})

		Convey("When writing before load", func() {
			store, err := repository.NewFileStore(dir)
			So(err, ShouldBeNil)

			Convey("Then writes are refused", func() {
				So(store.PutFingerprint(ctx, sampleFingerprint("fp_1")), ShouldEqual, repository.ErrNotLoaded)
				So(store.AppendComparison(ctx, sampleComparison("pulse_1")), ShouldEqual, repository.ErrNotLoaded)
			})
		})

		Convey("When the store is closed", func() {
			store, err := repository.NewFileStore(dir)
			So(err, ShouldBeNil)
			_, err = store.Load(ctx)
			So(err, ShouldBeNil)
			So(store.Close(), ShouldBeNil)

			Convey("Then further writes fail and Close is idempotent", func() {
				So(store.PutFingerprint(ctx, sampleFingerprint("fp_1")), ShouldEqual, repository.ErrClosed)
				So(store.Close(), ShouldBeNil)
			})
		})

		Convey("When fingerprints are written", func() {
			store, err := repository.NewFileStore(dir, repository.WithFsync(false))
			So(err, ShouldBeNil)
			defer func() { _ = store.Close() }()
			_, err = store.Load(ctx)
			So(err, ShouldBeNil)
			So(store.PutFingerprint(ctx, sampleFingerprint("fp_1")), ShouldBeNil)

			Convey("Then no temporary files are left behind", func() {
				entries, err := os.ReadDir(dir)
				So(err, ShouldBeNil)
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					names = append(names, e.Name())
				}
				So(names, ShouldResemble, []string{repository.ComparisonsFile, repository.FingerprintsFile})
			})
		})
	})
}
