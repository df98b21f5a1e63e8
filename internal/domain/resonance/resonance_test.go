package resonance_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/internal/domain/resonance"
	. "github.com/smartystreets/goconvey/convey"
)

var evalTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func researchFingerprint(age time.Duration) *model.Fingerprint {
	return &model.Fingerprint{
		ID:         "fp_research",
		IntentText: "Find consciousness researchers for collaboration",
		Tags:       []string{"research", "collaboration"},
		Charge:     0.9,
		CreatedAt:  evalTime.Add(-age),
	}
}

func TestFeatures(t *testing.T) {
	Convey("Given raw text", t, func() {
		Convey("When normalizing", func() {
			So(resonance.Normalize("  I'm   HERE, now!\n\tOK? "), ShouldEqual, "im here now ok")
			So(resonance.Normalize("?!..."), ShouldEqual, "")
		})

		Convey("When vectorizing", func() {
			v := resonance.Vectorize("Hi there!")

			Convey("Then trigrams and long words are separate features", func() {
				So(len(v), ShouldEqual, 7)
				So(v["t:the"], ShouldEqual, 1)
				So(v["t:hi "], ShouldEqual, 1)
				So(v["w:there"], ShouldEqual, 1)
				_, short := v["w:hi"]
				So(short, ShouldBeFalse)
			})
		})

		Convey("When a word and a trigram share the same letters", func() {
			v := resonance.Vectorize("cat")

			Convey("Then they do not collide", func() {
				So(v["t:cat"], ShouldEqual, 1)
				So(v["w:cat"], ShouldEqual, 1)
			})
		})
	})
}

func TestCosine(t *testing.T) {
	Convey("Given feature vectors", t, func() {
		a := resonance.Vectorize("consciousness research")

		Convey("Then identical vectors score 1", func() {
			So(resonance.Cosine(a, resonance.Vectorize("Consciousness, research!")), ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("Then empty vectors score 0", func() {
			So(resonance.Cosine(a, resonance.Vector{}), ShouldEqual, 0)
			So(resonance.Cosine(resonance.Vector{}, resonance.Vector{}), ShouldEqual, 0)
		})

		Convey("Then disjoint vectors score 0", func() {
			So(resonance.Cosine(a, resonance.Vectorize("zebra xylophone")), ShouldEqual, 0)
		})
	})
}

func TestBonuses(t *testing.T) {
	Convey("Given the bonus terms", t, func() {
		Convey("Then the charge multiplier is capped at 1.5", func() {
			So(resonance.ChargeMultiplier(0), ShouldEqual, 1.0)
			So(resonance.ChargeMultiplier(0.5), ShouldEqual, 1.25)
			So(resonance.ChargeMultiplier(1), ShouldEqual, 1.5)
			So(resonance.ChargeMultiplier(7), ShouldEqual, 1.5)
		})

		Convey("Then recency decays linearly over 24 hours", func() {
			So(resonance.RecencyBonus(evalTime, evalTime), ShouldAlmostEqual, 0.1, 1e-12)
			So(resonance.RecencyBonus(evalTime.Add(-12*time.Hour), evalTime), ShouldAlmostEqual, 0.05, 1e-12)
			So(resonance.RecencyBonus(evalTime.Add(-24*time.Hour), evalTime), ShouldEqual, 0)
			So(resonance.RecencyBonus(evalTime.Add(-72*time.Hour), evalTime), ShouldEqual, 0)
			So(resonance.RecencyBonus(evalTime.Add(time.Hour), evalTime), ShouldAlmostEqual, 0.1, 1e-12)
		})

		Convey("Then the tag bonus is capped at 0.2", func() {
			fp := &model.Fingerprint{
				ID:         "fp_tags",
				IntentText: "unrelated",
				Tags:       []string{"alpha", "BETA", "gamma"},
				CreatedAt:  evalTime.Add(-48 * time.Hour),
			}
			r := resonance.Score("alpha beta gamma", fp, evalTime)
			So(r.Evidence.TagBonus, ShouldAlmostEqual, 0.2, 1e-12)
			So(r.Evidence.MatchedTags, ShouldResemble, []string{"alpha", "BETA", "gamma"})
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Given strengths on each side of the thresholds", t, func() {
		cases := []struct {
			strength float64
			want     model.Classification
		}{
			{1.0, model.StrongEntanglement},
			{0.8, model.StrongEntanglement},
			{0.79, model.StrongResonance},
			{0.6, model.StrongResonance},
			{0.59, model.SubtleAttraction},
			{0.4, model.SubtleAttraction},
			{0.39, model.FaintEcho},
			{0.2, model.FaintEcho},
			{0.19, model.MinimalResponse},
			{0, model.MinimalResponse},
		}
		for _, c := range cases {
			So(resonance.Classify(c.strength), ShouldEqual, c.want)
		}
	})
}

func TestScoreScenarios(t *testing.T) {
	Convey("Given a research collaboration fingerprint registered two days ago", t, func() {
		fp := researchFingerprint(48 * time.Hour)

		Convey("When a related sentence is scored", func() {
			r := resonance.Score("I'm working on consciousness research and looking for collaborators", fp, evalTime)

			Convey("Then it resonates above the significance threshold", func() {
				So(r.Strength, ShouldBeGreaterThan, model.SignificantThreshold)
				So(r.Evidence.TagBonus, ShouldAlmostEqual, 0.1, 1e-12)
				So(r.Evidence.MatchedTags, ShouldResemble, []string{"research"})
				So(r.Evidence.SharedTerms, ShouldContain, "consciousness")
				So(r.Evidence.RecencyBonus, ShouldEqual, 0)
			})
		})

		Convey("When an unrelated sentence is scored", func() {
			r := resonance.Score("Seeking investors for innovative technology startups", fp, evalTime)

			Convey("Then it is at most a faint echo", func() {
				So(r.Strength, ShouldBeLessThan, 0.4)
				So(r.Classification, ShouldBeIn, model.MinimalResponse, model.FaintEcho)
			})
		})
	})

	Convey("Given the same fingerprint registered just now", t, func() {
		fp := researchFingerprint(0)

		Convey("When the unrelated sentence is scored", func() {
			r := resonance.Score("Seeking investors for innovative technology startups", fp, evalTime)

			Convey("Then the recency bonus still keeps it below subtle attraction", func() {
				So(r.Evidence.RecencyBonus, ShouldAlmostEqual, 0.1, 1e-12)
				So(r.Classification, ShouldBeIn, model.MinimalResponse, model.FaintEcho)
			})
		})
	})
}

func TestScoreProperties(t *testing.T) {
	texts := []string{
		"",
		"!!!",
		"consciousness",
		"Find consciousness researchers for collaboration",
		"research research research research collaboration collaboration",
		"Seeking investors for innovative technology startups",
		"日本語のテキストも大丈夫",
	}

	Convey("Given a range of texts and fingerprints", t, func() {
		for _, age := range []time.Duration{0, 6 * time.Hour, 30 * time.Hour} {
			for _, charge := range []float64{0, 0.35, 0.7, 1} {
				fp := researchFingerprint(age)
				fp.Charge = charge
				for _, text := range texts {
					r := resonance.Score(text, fp, evalTime)
					So(r.Strength, ShouldBeBetweenOrEqual, 0, 1)
					So(math.IsNaN(r.Strength), ShouldBeFalse)
					So(resonance.Score(text, fp, evalTime), ShouldResemble, r)
				}
			}
		}

		Convey("Then raising the charge never lowers the strength", func() {
			for _, text := range texts {
				prev := -1.0
				for c := 0.0; c <= 1.0001; c += 0.1 {
					fp := researchFingerprint(30 * time.Hour)
					fp.Charge = c
					s := resonance.Score(text, fp, evalTime).Strength
					So(s, ShouldBeGreaterThanOrEqualTo, prev)
					prev = s
				}
			}
		})
	})
}

func TestEngine(t *testing.T) {
	Convey("Given an engine with a pinned clock", t, func() {
		engine := resonance.NewEngine(resonance.WithClock(func() time.Time { return evalTime }))
		fp := researchFingerprint(48 * time.Hour)
		text := "I'm working on consciousness research and looking for collaborators"

		Convey("Then it agrees with the stateless scorer", func() {
			So(engine.Now(), ShouldEqual, evalTime)
			So(engine.ScoreText(text, fp), ShouldResemble, resonance.Score(text, fp, evalTime))
		})

		Convey("Then cached intent vectors are refreshed when the text differs", func() {
			first := engine.ScoreText(text, fp)
			changed := *fp
			changed.IntentText = "knitting patterns"
			second := engine.ScoreText(text, &changed)
			So(second.Strength, ShouldBeLessThan, first.Strength)

			engine.Forget(fp.ID)
			So(engine.ScoreText(text, fp), ShouldResemble, first)
		})

		Convey("Then a result converts to a persisted match", func() {
			r := engine.ScoreText(text, fp)
			m := r.Match()
			So(m.FingerprintID, ShouldEqual, fp.ID)
			So(m.Strength, ShouldEqual, r.Strength)
			So(m.Classification, ShouldEqual, r.Classification)
		})
	})
}
