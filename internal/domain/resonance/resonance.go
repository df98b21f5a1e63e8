// Package resonance scores how strongly a piece of text resonates with a fingerprint.
//
// Scoring is pure: the result depends only on the text, the fingerprint and the
// evaluation time, which is used for the recency bonus alone.
package resonance

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/okian/resonance/internal/domain/model"
)

// Scoring constants.
const (
	maxChargeMultiplier = 1.5
	chargeWeight        = 0.5

	tagBonusPerTag = 0.1
	maxTagBonus    = 0.2

	maxRecencyBonus = 0.1
	recencyWindow   = 24 * time.Hour

	maxSharedTerms = 10
)

// Classification thresholds, highest first.
const (
	entanglementThreshold = 0.8
	resonanceThreshold    = 0.6
	attractionThreshold   = 0.4
	echoThreshold         = 0.2
)

// Result is the score of one (text, fingerprint) pair.
type Result struct {
	FingerprintID  string
	Strength       float64
	Classification model.Classification
	Evidence       model.Evidence
}

// Match converts the result into the persisted match shape.
func (r Result) Match() model.Match { //nolint:gocritic // value receiver keeps Result immutable
	return model.Match{
		FingerprintID:  r.FingerprintID,
		Strength:       r.Strength,
		Classification: r.Classification,
		Evidence:       r.Evidence,
	}
}

// Prepared is an input text with its features computed once, so it can be
// scored against many fingerprints.
type Prepared struct {
	lowered string
	vector  Vector
}

// Prepare computes the features of text.
func Prepare(text string) Prepared {
	return Prepared{lowered: strings.ToLower(text), vector: Vectorize(text)}
}

// Scorer scores prepared input against a fingerprint at a given instant.
type Scorer interface {
	Score(in Prepared, fp *model.Fingerprint, now time.Time) Result
	Now() time.Time
}

// Score is the stateless form of Engine.Score.
func Score(text string, fp *model.Fingerprint, now time.Time) Result {
	return score(Prepare(text), Vectorize(fp.IntentText), fp, now)
}

// Classify buckets a strength.
func Classify(strength float64) model.Classification {
	switch {
	case strength >= entanglementThreshold:
		return model.StrongEntanglement
	case strength >= resonanceThreshold:
		return model.StrongResonance
	case strength >= attractionThreshold:
		return model.SubtleAttraction
	case strength >= echoThreshold:
		return model.FaintEcho
	default:
		return model.MinimalResponse
	}
}

// ChargeMultiplier returns min(1.5, 1 + charge*0.5).
func ChargeMultiplier(charge float64) float64 {
	return math.Min(maxChargeMultiplier, 1+model.NormalizeCharge(charge)*chargeWeight)
}

// RecencyBonus decays linearly from 0.1 at age zero to 0 at 24 hours.
func RecencyBonus(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	if age >= recencyWindow {
		return 0
	}
	return maxRecencyBonus * (1 - float64(age)/float64(recencyWindow))
}

func tagBonus(lowered string, tags []string) (float64, []string) {
	bonus := 0.0
	var matched []string
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" || !strings.Contains(lowered, t) {
			continue
		}
		matched = append(matched, tag)
		bonus += tagBonusPerTag
	}
	return math.Min(maxTagBonus, bonus), matched
}

func score(in Prepared, intent Vector, fp *model.Fingerprint, now time.Time) Result {
	sim := Cosine(in.vector, intent)
	mult := ChargeMultiplier(fp.Charge)
	tags, matched := tagBonus(in.lowered, fp.Tags)
	recency := RecencyBonus(fp.CreatedAt, now)

	strength := math.Min(1, sim*mult+tags+recency)
	return Result{
		FingerprintID:  fp.ID,
		Strength:       strength,
		Classification: Classify(strength),
		Evidence: model.Evidence{
			Similarity:       sim,
			ChargeMultiplier: mult,
			TagBonus:         tags,
			RecencyBonus:     recency,
			MatchedTags:      matched,
			SharedTerms:      sharedWords(in.vector, intent, maxSharedTerms),
		},
	}
}

type cachedIntent struct {
	text   string
	vector Vector
}

// Engine scores against fingerprints while caching intent vectors by id.
type Engine struct {
	clock func() time.Time

	mu      sync.RWMutex
	intents map[string]cachedIntent
}

// NewEngine constructs an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:   time.Now,
		intents: make(map[string]cachedIntent),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Score implements Scorer.
func (e *Engine) Score(in Prepared, fp *model.Fingerprint, now time.Time) Result {
	return score(in, e.intent(fp), fp, now)
}

// ScoreText prepares text and scores it at the engine's current time.
func (e *Engine) ScoreText(text string, fp *model.Fingerprint) Result {
	return e.Score(Prepare(text), fp, e.Now())
}

// Forget drops the cached vector of a fingerprint.
func (e *Engine) Forget(id string) {
	e.mu.Lock()
	delete(e.intents, id)
	e.mu.Unlock()
}

func (e *Engine) intent(fp *model.Fingerprint) Vector {
	e.mu.RLock()
	c, ok := e.intents[fp.ID]
	e.mu.RUnlock()
	if ok && c.text == fp.IntentText {
		return c.vector
	}

	v := Vectorize(fp.IntentText)
	if fp.ID != "" {
		e.mu.Lock()
		e.intents[fp.ID] = cachedIntent{text: fp.IntentText, vector: v}
		e.mu.Unlock()
	}
	return v
}
