// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		choice string
		custom string
		want   string
	}{
		{"builtin", "Creative Writer", "", CreativeWriter.Text()},
		{"builtin ignores custom", "Code Expert", "be brief", CodeExpert.Text()},
		{"custom", "Custom", "You are a pirate.", "You are a pirate."},
		{"custom trimmed", "Custom", "  spaced  ", "spaced"},
		{"custom blank", "Custom", "   \t\n", DefaultAssistant.Text()},
		{"custom empty", "Custom", "", DefaultAssistant.Text()},
		{"unknown", "Pirate Captain", "", DefaultAssistant.Text()},
		{"empty choice", "", "", DefaultAssistant.Text()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(tc.choice, tc.custom); got != tc.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tc.choice, tc.custom, got, tc.want)
			}
		})
	}
}

func TestParsePersona(t *testing.T) {
	for _, p := range Personas() {
		got, err := ParsePersona(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePersona(%q) = %v, %v; want %v", p.String(), got, err, p)
		}
	}
	if _, err := ParsePersona("nope"); !errors.Is(err, ErrUnknownPersona) {
		t.Errorf("ParsePersona(nope) error = %v, want ErrUnknownPersona", err)
	}
	if got, _ := ParsePersona(CustomChoice); got != Custom {
		t.Errorf("ParsePersona(Custom) = %v", got)
	}
}

func TestPersonas_Registry(t *testing.T) {
	ps := Personas()
	if len(ps) != 8 {
		t.Fatalf("Personas() len = %d, want 8", len(ps))
	}
	if ps[0] != DefaultAssistant {
		t.Errorf("first persona = %v, want Default Assistant", ps[0])
	}
	for _, p := range ps {
		if strings.TrimSpace(p.Text()) == "" {
			t.Errorf("%v has empty text", p)
		}
	}
	if !strings.Contains(HealthWellness.Text(), "consult healthcare professionals") {
		t.Error("Health & Wellness text missing disclaimer")
	}
}

func TestSelection_Label(t *testing.T) {
	if got := Select("Custom", "x").Label(); got != "Custom" {
		t.Errorf("Label() = %q, want Custom", got)
	}
	if got := Select("Custom", " ").Label(); got != "Default Assistant" {
		t.Errorf("blank custom Label() = %q, want Default Assistant", got)
	}
	if got := Select("Travel Guide", "").Label(); got != "Travel Guide" {
		t.Errorf("Label() = %q", got)
	}
	if Persona(42).Valid() {
		t.Error("Persona(42) should be invalid")
	}
}
