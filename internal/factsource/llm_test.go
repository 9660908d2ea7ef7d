package factsource

import (
	"testing"

	"github.com/ashvattha/ashvattha/internal/model"
)

func TestParseLLMFacts(t *testing.T) {
	content := `{"facts": [
		{"relation": "father", "name": "Philip II", "gender": "male", "birth_year": -382, "confidence": 90, "note": "well documented"},
		{"relation": "mother", "name": "Olympias", "gender": "female", "confidence": 99},
		{"relation": "child", "name": "Alexander IV", "confidence": 80},
		{"relation": "cousin", "name": "Nobody", "confidence": 50},
		{"relation": "father", "name": "  ", "confidence": 50}
	]}`

	facts, err := ParseLLMFacts(content, model.DirAncestors)
	if err != nil {
		t.Fatalf("ParseLLMFacts: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("got %d facts, want 2 (child filtered by direction, junk dropped)", len(facts))
	}

	father := facts[0]
	if father.Relation != RelFather || father.Name != "Philip II" {
		t.Errorf("first fact = %+v, want father Philip II", father)
	}
	if father.BirthYear == nil || *father.BirthYear != -382 {
		t.Errorf("father birth year = %v, want -382", father.BirthYear)
	}
	if father.SourceKind != model.SourceLLM || father.Authority != model.TierTertiary {
		t.Errorf("father provenance = %s/%s, want llm/tertiary", father.SourceKind, father.Authority)
	}

	mother := facts[1]
	if mother.Confidence != confLLMCap {
		t.Errorf("mother confidence = %v, want capped at %v", mother.Confidence, float64(confLLMCap))
	}
}

func TestParseLLMFactsFractionalScale(t *testing.T) {
	facts, err := ParseLLMFacts(`{"facts": [{"relation": "father", "name": "X", "confidence": 0.6}]}`, model.DirBoth)
	if err != nil {
		t.Fatalf("ParseLLMFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Confidence != 60 {
		t.Errorf("facts = %+v, want one fact at confidence 60", facts)
	}
}

func TestParseLLMFactsCodeFence(t *testing.T) {
	content := "```json\n{\"facts\": [{\"relation\": \"child\", \"name\": \"Y\", \"confidence\": 70}]}\n```"
	facts, err := ParseLLMFacts(content, model.DirDescendants)
	if err != nil {
		t.Fatalf("ParseLLMFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Relation != RelChild {
		t.Errorf("facts = %+v, want one child fact", facts)
	}
}

func TestParseLLMFactsBadJSON(t *testing.T) {
	if _, err := ParseLLMFacts("Philip II was the father.", model.DirBoth); err == nil {
		t.Error("expected error for prose answer")
	}
}
