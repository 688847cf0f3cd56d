package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Company is an organization mentioned in the transcript.
type Company struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// Product is a product or service mentioned in the transcript.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Result is the structured analysis of one transcript. Empty fields mean
// nothing relevant was found.
type Result struct {
	ContextualAnalysis Text      `json:"contextualAnalysis"`
	Companies          []Company `json:"companies"`
	Products           []Product `json:"products"`
	RelatedInfo        Text      `json:"relatedInfo"`
}

// Empty reports whether the result carries no information at all.
func (r Result) Empty() bool {
	return r.ContextualAnalysis == "" && r.RelatedInfo == "" && len(r.Companies) == 0 && len(r.Products) == 0
}

// Text is free-form model output. Models sometimes return a list of bullet
// strings instead of one string; both decode, lists joined by newlines.
type Text string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (t *Text) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = Text(strings.Join(list, "\n"))
		return nil
	}
	return fmt.Errorf("analysis text: expected string or string array, got %s", summarizePayloadSnippet(trimmed))
}

// normalize trims every field, drops nameless entries, removes duplicate names
// case-insensitively, and title-cases industries.
func (r Result) normalize() Result {
	out := Result{
		ContextualAnalysis: Text(strings.TrimSpace(string(r.ContextualAnalysis))),
		RelatedInfo:        Text(strings.TrimSpace(string(r.RelatedInfo))),
		Companies:          make([]Company, 0, len(r.Companies)),
		Products:           make([]Product, 0, len(r.Products)),
	}
	seen := make(map[string]struct{}, len(r.Companies))
	for _, c := range r.Companies {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		industry := strings.TrimSpace(c.Industry)
		if industry != "" && industry == strings.ToLower(industry) {
			industry = cases.Title(language.English).String(industry)
		}
		out.Companies = append(out.Companies, Company{Name: name, Industry: industry})
	}
	seen = make(map[string]struct{}, len(r.Products))
	for _, p := range r.Products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.Products = append(out.Products, Product{Name: name, Description: strings.TrimSpace(p.Description)})
	}
	return out
}
