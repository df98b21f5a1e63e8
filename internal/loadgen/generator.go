package loadgen

import (
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
)

// topics maps a topic name to the vocabulary generated text draws from.
var topics = map[string][]string{
	"quantum":  {"quantum", "qubit", "entanglement", "superposition", "decoherence", "photon", "computing", "error-correction"},
	"climate":  {"climate", "carbon", "emissions", "warming", "glacier", "drought", "renewable", "adaptation"},
	"biology":  {"protein", "folding", "genome", "enzyme", "cell", "mutation", "sequencing", "molecular"},
	"markets":  {"inflation", "equity", "bond", "yield", "liquidity", "earnings", "volatility", "interest"},
	"space":    {"orbit", "satellite", "rocket", "launch", "telescope", "exoplanet", "lunar", "mission"},
	"ai":       {"neural", "model", "training", "inference", "transformer", "dataset", "benchmark", "alignment"},
	"security": {"vulnerability", "exploit", "patch", "encryption", "breach", "malware", "firewall", "audit"},
	"energy":   {"battery", "grid", "solar", "turbine", "storage", "hydrogen", "nuclear", "transmission"},
}

var filler = []string{"report", "today", "researchers", "announced", "new", "study", "shows", "update", "team", "results", "early", "findings"}

// generator produces deterministic synthetic traffic for a seed.
type generator struct {
	rnd    *rand.Rand
	names  []string
	source string
}

func newGenerator(seed uint64) *generator {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return &generator{
		rnd:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		names:  names,
		source: "loadgen",
	}
}

// fingerprints returns n fingerprints spread round-robin over the topics.
func (g *generator) fingerprints(n int, owner string) []FingerprintSpec {
	out := make([]FingerprintSpec, 0, n)
	for i := 0; i < n; i++ {
		topic := g.names[i%len(g.names)]
		words := g.pick(topics[topic], 4)
		out = append(out, FingerprintSpec{
			IntentText: strings.Join(words, " "),
			Owner:      owner + "-" + strconv.Itoa(i%4),
			Tags:       []string{topic, words[0]},
			Charge:     0.4 + g.rnd.Float64()*0.6,
		})
	}
	return out
}

// pulses returns n texts mixing one to three topics with filler words.
func (g *generator) pulses(n int) []PulseSpec {
	out := make([]PulseSpec, 0, n)
	for i := 0; i < n; i++ {
		k := 1 + g.rnd.IntN(3)
		picked := g.pick(g.names, k)
		var words []string
		for _, topic := range picked {
			words = append(words, g.pick(topics[topic], 3)...)
		}
		words = append(words, g.pick(filler, 2+g.rnd.IntN(3))...)
		g.rnd.Shuffle(len(words), func(a, b int) { words[a], words[b] = words[b], words[a] })
		out = append(out, PulseSpec{
			Text:        strings.Join(words, " "),
			SourceLabel: g.source + ":" + strconv.Itoa(i),
		})
	}
	return out
}

// pick returns k distinct elements of from in random order.
func (g *generator) pick(from []string, k int) []string {
	if k > len(from) {
		k = len(from)
	}
	idx := g.rnd.Perm(len(from))[:k]
	out := make([]string, k)
	for i, j := range idx {
		out[i] = from[j]
	}
	return out
}
