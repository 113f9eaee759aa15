// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPersona is returned by ParsePersona for names outside the registry.
var ErrUnknownPersona = errors.New("unknown persona")

// =============================================================================
// PERSONA ENUMERATION
// =============================================================================

// Persona identifies a built-in system prompt, or Custom.
type Persona int

const (
	DefaultAssistant Persona = iota
	CreativeWriter
	CodeExpert
	AcademicTutor
	BusinessAnalyst
	HealthWellness
	TravelGuide
	TechSupport
	Custom
)

// CustomChoice is the picker label of the custom slot.
const CustomChoice = "Custom"

type entry struct {
	name string
	text string
}

var registry = [...]entry{
	DefaultAssistant: {
		name: "Default Assistant",
		text: "You are a helpful, creative, and intelligent AI assistant. You provide accurate, detailed, and engaging responses while being friendly and professional.",
	},
	CreativeWriter: {
		name: "Creative Writer",
		text: "You are a creative writing assistant. Help users with storytelling, creative writing, poetry, and imaginative content. Be expressive and inspiring.",
	},
	CodeExpert: {
		name: "Code Expert",
		text: "You are a programming expert. Provide clear, well-commented code solutions, explain programming concepts, and help debug issues. Focus on best practices and clean code.",
	},
	AcademicTutor: {
		name: "Academic Tutor",
		text: "You are an academic tutor. Explain complex concepts clearly, provide step-by-step solutions, and help students understand difficult topics across various subjects.",
	},
	BusinessAnalyst: {
		name: "Business Analyst",
		text: "You are a business consultant. Provide strategic insights, analyze market trends, suggest business solutions, and help with professional decision-making.",
	},
	HealthWellness: {
		name: "Health & Wellness",
		text: "You are a health and wellness advisor. Provide general health information, wellness tips, and lifestyle advice. Always remind users to consult healthcare professionals for medical issues.",
	},
	TravelGuide: {
		name: "Travel Guide",
		text: "You are a travel expert. Provide destination recommendations, travel tips, cultural insights, and help plan memorable trips around the world.",
	},
	TechSupport: {
		name: "Tech Support",
		text: "You are a technical support specialist. Help troubleshoot technology issues, explain technical concepts simply, and provide step-by-step solutions.",
	},
	Custom: {
		name: CustomChoice,
	},
}

// Personas returns the built-in personas in picker order. Custom is not included.
func Personas() []Persona {
	out := make([]Persona, 0, int(Custom))
	for p := DefaultAssistant; p < Custom; p++ {
		out = append(out, p)
	}
	return out
}

// ParsePersona maps a picker label to its Persona.
func ParsePersona(name string) (Persona, error) {
	for i, e := range registry {
		if e.name == name {
			return Persona(i), nil
		}
	}
	return DefaultAssistant, fmt.Errorf("%w: %q", ErrUnknownPersona, name)
}

// Valid reports whether p is a member of the enumeration.
func (p Persona) Valid() bool {
	return p >= DefaultAssistant && p <= Custom
}

// String returns the picker label.
func (p Persona) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Persona(%d)", int(p))
	}
	return registry[p].name
}

// Text returns the built-in system prompt. Custom and invalid values yield
// the Default Assistant text.
func (p Persona) Text() string {
	if !p.Valid() || p == Custom {
		return registry[DefaultAssistant].text
	}
	return registry[p].text
}

// =============================================================================
// SELECTION
// =============================================================================

// Selection is the persona picked in the UI plus the custom text field.
type Selection struct {
	Persona    Persona
	CustomText string
}

// Select builds a Selection from raw UI strings. Unknown choices select the
// Default Assistant.
func Select(choice, custom string) Selection {
	p, err := ParsePersona(choice)
	if err != nil {
		p = DefaultAssistant
	}
	return Selection{Persona: p, CustomText: custom}
}

// IsCustom reports whether the selection resolves to the custom text.
func (s Selection) IsCustom() bool {
	return s.Persona == Custom && strings.TrimSpace(s.CustomText) != ""
}

// Text returns the system prompt for the selection. Custom text is trimmed;
// blank custom text falls back to the Default Assistant.
func (s Selection) Text() string {
	if s.IsCustom() {
		return strings.TrimSpace(s.CustomText)
	}
	return s.Persona.Text()
}

// Label is the persona name, or "Custom" when custom text is active.
func (s Selection) Label() string {
	if s.IsCustom() {
		return CustomChoice
	}
	if s.Persona == Custom {
		return DefaultAssistant.String()
	}
	return s.Persona.String()
}

// Resolve returns the system prompt for a picker choice and custom text.
func Resolve(choice, custom string) string {
	return Select(choice, custom).Text()
}
