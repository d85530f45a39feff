package models

import "strings"

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderOpenAI, ProviderGemini}

func (p Provider) String() string { return string(p) }

func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProvider normalizes a selector. An empty selector yields fallback.
func ParseProvider(s string, fallback Provider) (Provider, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback, fallback.Valid()
	}
	p := Provider(s)
	return p, p.Valid()
}
