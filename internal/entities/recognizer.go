package entities

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"

	"github.com/deusflow/newsroom/internal/domain"
)

// Span is a labeled entity mention.
type Span struct {
	Text  string
	Label string
}

// Recognizer runs statistical NER over text.
type Recognizer interface {
	Recognize(text string) ([]Span, error)
}

// CanonicalType maps a recognizer label onto the entity taxonomy.
func CanonicalType(label string) (domain.EntityType, bool) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PERSON", "PER", "PERSONA":
		return domain.EntityPerson, true
	case "ORG", "ORGANIZATION", "ORGANIZACION":
		return domain.EntityOrganization, true
	case "GPE", "LOC", "LOCATION", "FAC", "LUGAR":
		return domain.EntityLocation, true
	}
	return "", false
}

// ProseRecognizer wraps the prose model. The model is loaded once and then
// only read; calls are serialized.
type ProseRecognizer struct {
	mu    sync.Mutex
	once  sync.Once
	model *prose.Model
	err   error
}

var (
	sharedOnce sync.Once
	shared     *ProseRecognizer
)

// SharedProse returns the process-wide recognizer.
func SharedProse() *ProseRecognizer {
	sharedOnce.Do(func() { shared = &ProseRecognizer{} })
	return shared
}

// Warm loads the model ahead of the first extraction.
func (p *ProseRecognizer) Warm() error {
	p.once.Do(func() {
		doc, err := prose.NewDocument("Warm up.", prose.WithSegmentation(false))
		if err != nil {
			p.err = fmt.Errorf("load ner model: %w", err)
			return
		}
		p.model = doc.Model
	})
	return p.err
}

func (p *ProseRecognizer) Recognize(text string) ([]Span, error) {
	if err := p.Warm(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false), prose.UsingModel(p.model))
	if err != nil {
		return nil, fmt.Errorf("ner: %w", err)
	}

	ents := doc.Entities()
	spans := make([]Span, 0, len(ents))
	for _, e := range ents {
		spans = append(spans, Span{Text: e.Text, Label: e.Label})
	}
	return spans, nil
}
