package entities

import (
	"context"
	"testing"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/metrics"
)

func TestProseRecognizerOnSpanishText(t *testing.T) {
	rec := SharedProse()
	if err := rec.Warm(); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if SharedProse() != rec {
		t.Fatal("shared recognizer must be a singleton")
	}

	text := "El presidente Pedro Sánchez se reunió con Emmanuel Macron en París. La reunión fue breve."
	spans, err := rec.Recognize(text)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(spans) == 0 {
		t.Fatal("expected the model to find at least one span")
	}

	ex := New(nil, rec, metrics.New(), DefaultOptions())
	cands, err := ex.Candidates(text, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) == 0 {
		t.Fatal("expected candidates after filtering")
	}
	for _, c := range cands {
		switch c.Type {
		case domain.EntityPerson, domain.EntityOrganization, domain.EntityLocation:
		default:
			t.Errorf("candidate %q has unmapped type %q", c.Name, c.Type)
		}
		if isStopWord(c.Name) || !Valid(c.Name) {
			t.Errorf("candidate %q must have been filtered", c.Name)
		}
	}
}

func TestStopWordsDoNotSpreadThroughWatchlist(t *testing.T) {
	s := newStore(t)
	first := insert(t, s, "https://example.com/a",
		"El presidente Pedro Sánchez se reunió con Emmanuel Macron en París.", "La reunión fue breve.", "es", false)

	ex := New(s, SharedProse(), metrics.New(), DefaultOptions())
	if _, err := ex.RunNative(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, name := range linkedNames(t, s, first) {
		if isStopWord(name) {
			t.Errorf("stop word %q linked to first item", name)
		}
	}

	second := insert(t, s, "https://example.com/b",
		"suben los precios del pan", "según el instituto, la subida es la mayor del año.", "es", false)
	if _, err := ex.RunNative(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, name := range linkedNames(t, s, second) {
		if isStopWord(name) {
			t.Errorf("stop word %q linked to second item", name)
		}
	}
	if !isExtracted(t, s, second) {
		t.Error("second item must be marked extracted")
	}
}
