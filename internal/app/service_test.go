package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/resonance/internal/adapters/poller"
	service "github.com/okian/resonance/internal/app"
	"github.com/okian/resonance/internal/config"
	"github.com/okian/resonance/internal/domain/convergence"
	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/internal/domain/registry"
	"github.com/okian/resonance/pkg/logger"
)

const (
	intentText  = "Find consciousness researchers for collaboration"
	relatedText = "I'm working on consciousness research and looking for collaborators"
)

func newService(t *testing.T, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithStore("file", t.TempDir(), ""),
		service.WithLogger(logger.Nop()),
		service.WithPollInterval(time.Hour),
	}
	return service.New(append(base, opts...)...)
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := newService(t)

		Convey("When used before Start", func() {
			_, err := svc.Register(ctx, intentText, "alice", model.RegisterOptions{})

			Convey("Then operations report it is not started", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(svc.Push("x", "", time.Time{}), service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When started twice and stopped twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Started(), ShouldBeTrue)
			stats := svc.GetStats()
			So(stats["fingerprints"], ShouldEqual, 0)
			So(stats["backend"], ShouldEqual, "file")

			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it ends stopped", func() {
				So(svc.Started(), ShouldBeFalse)
			})
		})
	})

	Convey("Given an invalid id scheme", t, func() {
		svc := newService(t, service.WithIDScheme("sequential"))

		Convey("Then Start fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
			So(svc.Started(), ShouldBeFalse)
		})
	})
}

func TestService_RecordAndQuery(t *testing.T) {
	Convey("Given a started service with two similar fingerprints", t, func() {
		ctx := context.Background()
		svc := newService(t)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		charge := 0.9
		a, err := svc.Register(ctx, intentText, "alice", model.RegisterOptions{Tags: []string{"research"}, Charge: &charge})
		So(err, ShouldBeNil)
		b, err := svc.Register(ctx, intentText, "bob", model.RegisterOptions{Tags: []string{"collaboration"}})
		So(err, ShouldBeNil)

		Convey("When related text is recorded directly", func() {
			c, err := svc.Record(ctx, relatedText, model.RecordMeta{})
			So(err, ShouldBeNil)

			Convey("Then both fingerprints match and the record is retrievable", func() {
				So(c.Matches, ShouldHaveLength, 2)
				got, err := svc.Comparison(ctx, c.ID)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, c.ID)
			})

			Convey("Then the record is a convergence under the default criteria", func() {
				crit := svc.ConvergenceDefaults()
				So(crit.MinStrength, ShouldEqual, convergence.DefaultMinStrength)
				So(crit.MinMatches, ShouldEqual, convergence.DefaultMinMatches)
				found, err := svc.Convergences(ctx, crit)
				So(err, ShouldBeNil)
				So(found, ShouldHaveLength, 1)
				So(found[0].ID, ShouldEqual, c.ID)

				crit.MinMatches = 3
				none, err := svc.Convergences(ctx, crit)
				So(err, ShouldBeNil)
				So(none, ShouldBeEmpty)

				all, err := svc.Convergences(ctx, convergence.Criteria{MinStrength: 0, MinMatches: 1})
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 1)
			})
		})

		Convey("When one fingerprint is archived", func() {
			ok, err := svc.Archive(ctx, a.ID)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			c, err := svc.Record(ctx, relatedText, model.RecordMeta{})
			So(err, ShouldBeNil)

			Convey("Then only the other one matches and queries reflect the archive", func() {
				So(c.Matches, ShouldHaveLength, 1)
				So(c.Matches[0].FingerprintID, ShouldEqual, b.ID)

				active, err := svc.Fingerprints(ctx, model.Filter{ActiveOnly: true})
				So(err, ShouldBeNil)
				So(active, ShouldHaveLength, 1)

				fp, err := svc.Fingerprint(ctx, a.ID)
				So(err, ShouldBeNil)
				So(fp.Metadata.Archived, ShouldBeTrue)
			})
		})

		Convey("When an unknown id is looked up or archived", func() {
			_, err := svc.Fingerprint(ctx, "fp_missing")
			ok, aerr := svc.Archive(ctx, "fp_missing")

			Convey("Then not found and false are reported", func() {
				So(errors.Is(err, registry.ErrNotFound), ShouldBeTrue)
				So(aerr, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestService_SchedulerNotifications(t *testing.T) {
	Convey("Given a started service with a subscriber", t, func() {
		ctx := context.Background()
		svc := newService(t)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		_, err := svc.Register(ctx, intentText, "alice", model.RegisterOptions{})
		So(err, ShouldBeNil)
		sub, unsubscribe := svc.Subscribe("test", 8)
		defer unsubscribe()

		Convey("When related text is pushed and a tick runs", func() {
			So(svc.Push(relatedText, "rss:lab", time.Time{}), ShouldBeNil)
			res, err := svc.Tick(ctx)
			So(err, ShouldBeNil)

			Convey("Then the item is recorded and both notification kinds arrive", func() {
				So(res.Recorded, ShouldEqual, 1)
				So(res.HighPriority, ShouldEqual, 1)

				var kinds []model.NotificationKind
				timeout := time.After(2 * time.Second)
				for len(kinds) < 2 {
					select {
					case n := <-sub.C():
						kinds = append(kinds, n.Kind)
						So(n.Comparison.InputType, ShouldEqual, model.FeedInputType)
						So(n.Comparison.SourceLabel, ShouldEqual, "rss:lab")
					case <-timeout:
						t.Fatalf("expected two notifications, got %v", kinds)
					}
				}
				So(kinds, ShouldContain, model.MatchFound)
				So(kinds, ShouldContain, model.HighPriority)
			})
		})

		Convey("When the scheduler is started and stopped", func() {
			So(svc.StartScheduler(ctx), ShouldBeNil)
			st, err := svc.SchedulerStatus()
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, poller.StateRunning)
			So(svc.StopScheduler(), ShouldBeNil)

			Convey("Then it reports stopped", func() {
				st, err := svc.SchedulerStatus()
				So(err, ShouldBeNil)
				So(st.State, ShouldEqual, poller.StateStopped)
				So(st.Adapters, ShouldContain, service.InboxName)
			})
		})
	})
}

func TestService_Persistence(t *testing.T) {
	Convey("Given a sqlite-backed service configured from a Config", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.StoreBackend = "sqlite"
		cfg.DataDir = t.TempDir()
		cfg.IDScheme = "uuid"

		svc := service.New(service.WithConfig(cfg), service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)
		fp, err := svc.Register(ctx, intentText, "alice", model.RegisterOptions{})
		So(err, ShouldBeNil)
		c, err := svc.Record(ctx, relatedText, model.RecordMeta{SourceLabel: "cli"})
		So(err, ShouldBeNil)
		So(svc.Stop(ctx), ShouldBeNil)

		Convey("When a new service opens the same database", func() {
			again := service.New(service.WithConfig(cfg), service.WithLogger(logger.Nop()))
			So(again.Start(ctx), ShouldBeNil)
			defer func() { _ = again.Stop(ctx) }()

			Convey("Then fingerprints and comparisons survive", func() {
				got, err := again.Fingerprint(ctx, fp.ID)
				So(err, ShouldBeNil)
				So(got.LastSignificantMatch, ShouldNotBeNil)
				rec, err := again.Comparison(ctx, c.ID)
				So(err, ShouldBeNil)
				So(rec.SourceLabel, ShouldEqual, "cli")
				So(again.GetStats()["backend"], ShouldEqual, "sqlite")
			})
		})
	})
}
