package dedupe_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/resonance/internal/domain/dedupe"
	"github.com/okian/resonance/internal/domain/model"
)

func TestItemKey(t *testing.T) {
	Convey("Given feed items", t, func() {
		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		item := model.Item{Text: "hello", SourceLabel: "rss", PublishedAt: at}

		Convey("Then identical items share a key", func() {
			So(dedupe.ItemKey(item), ShouldEqual, dedupe.ItemKey(model.Item{Text: "hello", SourceLabel: "rss", PublishedAt: at}))
		})

		Convey("Then any differing field changes the key", func() {
			k := dedupe.ItemKey(item)
			So(dedupe.ItemKey(model.Item{Text: "hello!", SourceLabel: "rss", PublishedAt: at}), ShouldNotEqual, k)
			So(dedupe.ItemKey(model.Item{Text: "hello", SourceLabel: "web", PublishedAt: at}), ShouldNotEqual, k)
			So(dedupe.ItemKey(model.Item{Text: "hello", SourceLabel: "rss"}), ShouldNotEqual, k)
		})

		Convey("Then field boundaries are not ambiguous", func() {
			a := dedupe.ItemKey(model.Item{SourceLabel: "ab", Text: "c"})
			b := dedupe.ItemKey(model.Item{SourceLabel: "a", Text: "bc"})
			So(a, ShouldNotEqual, b)
		})
	})
}

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("Then it starts empty", func() {
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When a key is recorded twice", func() {
			first := d.SeenAndRecord(ctx, 42)
			second := d.SeenAndRecord(ctx, 42)

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is unrecorded", func() {
			d.SeenAndRecord(ctx, 7)
			d.Unrecord(ctx, 7)
			d.Unrecord(ctx, 7)

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, 7), ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

		Convey("When more keys than the bound are recorded", func() {
			for k := uint64(1); k <= 4; k++ {
				So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
			}

			Convey("Then the oldest key is forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, 4), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, 2), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, 1), ShouldBeFalse)
			})
		})

		Convey("When a key is unrecorded before its slot is reused", func() {
			d.SeenAndRecord(ctx, 1)
			d.SeenAndRecord(ctx, 2)
			d.Unrecord(ctx, 1)
			d.SeenAndRecord(ctx, 3)
			d.SeenAndRecord(ctx, 4)

			Convey("Then the size never goes negative or above the bound", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, 2), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

		Convey("When many keys are recorded", func() {
			for k := uint64(0); k < 1000; k++ {
				d.SeenAndRecord(ctx, k)
			}

			Convey("Then none are evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, 0), ShouldBeTrue)
			})
		})
	})

	Convey("Given concurrent callers racing on the same keys", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := uint64(0); k < 100; k++ {
					if !d.SeenAndRecord(ctx, k) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is new exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
