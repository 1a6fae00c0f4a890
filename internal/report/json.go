package report

import (
	"encoding/json"

	"github.com/ioc-labs/surge/internal/engine"
)

type jsonDocument struct {
	*engine.RunSummary
	Omitted []string `json:"omitted_sections,omitempty"`
}

func renderJSON(s *engine.RunSummary, omitted []*RenderError) ([]byte, error) {
	doc := jsonDocument{RunSummary: s}
	for _, o := range omitted {
		doc.Omitted = append(doc.Omitted, o.Section)
	}
	return json.MarshalIndent(doc, "", "  ")
}
