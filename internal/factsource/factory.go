package factsource

import (
	"fmt"

	"github.com/ashvattha/ashvattha/internal/model"
)

// FromConfig builds the configured providers behind one fan-in source.
// Provider order in the config is consultation order.
func FromConfig(cfg model.SourceConfig) (Source, error) {
	client := NewClient(cfg)

	var sources []Source
	for _, name := range cfg.Providers {
		switch name {
		case "wikidata":
			sources = append(sources, NewWikidata(client))
		case "wikipedia":
			sources = append(sources, NewWikipedia(client))
		case "llm":
			src, err := NewLLM(cfg.LLM)
			if err != nil {
				return nil, fmt.Errorf("provider llm: %w", err)
			}
			sources = append(sources, src)
		default:
			return nil, fmt.Errorf("unknown fact source provider %q", name)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no fact source providers configured")
	}
	if len(sources) == 1 {
		return sources[0], nil
	}
	return NewMulti(sources...), nil
}
