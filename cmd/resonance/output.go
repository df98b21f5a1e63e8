package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"

	"github.com/okian/resonance/internal/domain/model"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()

	classColors = map[model.Classification]func(a ...interface{}) string{
		model.StrongEntanglement: color.New(color.FgMagenta, color.Bold).SprintFunc(),
		model.StrongResonance:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		model.SubtleAttraction:   color.New(color.FgYellow).SprintFunc(),
		model.FaintEcho:          color.New(color.FgCyan).SprintFunc(),
		model.MinimalResponse:    color.New(color.Faint).SprintFunc(),
	}
)

// printer renders command results as colored text or JSON.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, jsonOut bool) *printer {
	return &printer{w: w, json: jsonOut}
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) fingerprint(fp *model.Fingerprint) error {
	if p.json {
		return p.encode(fp)
	}
	state := "active"
	if !fp.Active() {
		state = warning("archived")
	}
	fmt.Fprintf(p.w, "%s  %s  %s\n", bold(fp.ID), fp.Owner, state)
	fmt.Fprintf(p.w, "  intent:   %s\n", fp.IntentText)
	fmt.Fprintf(p.w, "  tags:     %s\n", strings.Join(fp.Tags, ", "))
	fmt.Fprintf(p.w, "  charge:   %.2f\n", fp.Charge)
	fmt.Fprintf(p.w, "  created:  %s\n", fp.CreatedAt.Format(time.RFC3339))
	if fp.LastSignificantMatch != nil {
		fmt.Fprintf(p.w, "  last hit: %s\n", fp.LastSignificantMatch.Format(time.RFC3339))
	}
	fmt.Fprintf(p.w, "  meta:     %s/%s/%s\n", fp.Metadata.Source, fp.Metadata.Priority, fp.Metadata.Category)
	return nil
}

func (p *printer) fingerprints(fps []model.Fingerprint) error {
	if p.json {
		if fps == nil {
			fps = []model.Fingerprint{}
		}
		return p.encode(fps)
	}
	if len(fps) == 0 {
		fmt.Fprintln(p.w, faint("no fingerprints"))
		return nil
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tCHARGE\tTAGS\tSTATE\tINTENT")
	for i := range fps {
		fp := &fps[i]
		state := "active"
		if !fp.Active() {
			state = "archived"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%s\n", fp.ID, fp.Owner, fp.Charge, strings.Join(fp.Tags, ","), state, truncate(fp.IntentText, 60))
	}
	return tw.Flush()
}

func (p *printer) archived(id string, ok bool) error {
	if p.json {
		return p.encode(map[string]any{"id": id, "archived": ok})
	}
	if !ok {
		fmt.Fprintf(p.w, "%s %s\n", warning("not found"), id)
		return nil
	}
	fmt.Fprintf(p.w, "archived %s\n", bold(id))
	return nil
}

func (p *printer) comparison(c *model.Comparison) error {
	if p.json {
		return p.encode(c)
	}
	fmt.Fprintf(p.w, "%s  %s  %s/%s\n", bold(c.ID), c.Timestamp.Format(time.RFC3339), c.InputType, c.SourceLabel)
	fmt.Fprintf(p.w, "  input: %s\n", truncate(c.InputText, 80))
	if len(c.Matches) == 0 {
		fmt.Fprintf(p.w, "  %s\n", faint("no matches"))
		return nil
	}
	for i := range c.Matches {
		m := &c.Matches[i]
		fmt.Fprintf(p.w, "  %-24s %.3f  %s\n", m.FingerprintID, m.Strength, classify(m.Classification))
		if len(m.Evidence.SharedTerms) > 0 {
			fmt.Fprintf(p.w, "    %s\n", faint("terms: "+strings.Join(m.Evidence.SharedTerms, ", ")))
		}
		if len(m.Evidence.MatchedTags) > 0 {
			fmt.Fprintf(p.w, "    %s\n", faint("tags: "+strings.Join(m.Evidence.MatchedTags, ", ")))
		}
	}
	return nil
}

func (p *printer) comparisons(cs []model.Comparison) error {
	if p.json {
		if cs == nil {
			cs = []model.Comparison{}
		}
		return p.encode(cs)
	}
	if len(cs) == 0 {
		fmt.Fprintln(p.w, faint("no convergences"))
		return nil
	}
	for i := range cs {
		if err := p.comparison(&cs[i]); err != nil {
			return err
		}
	}
	return nil
}

func classify(c model.Classification) string {
	if paint, ok := classColors[c]; ok {
		return paint(string(c))
	}
	return string(c)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
