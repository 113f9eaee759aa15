// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits raw arguments into flags and positionals.
//
// Supported formats:
//
//	--flag value     long flag with a space-separated value
//	--flag=value     long flag with an equals sign
//	-f value         short flag
//	--flag           boolean flag (must be declared to NewArgParser)
//	--               everything after is positional
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw. Names listed in boolNames never consume the
// following argument, so "--quiet chat" keeps "chat" positional.
func NewArgParser(raw []string, boolNames ...string) *ArgParser {
	isBool := make(map[string]bool, len(boolNames))
	for _, n := range boolNames {
		isBool[n] = true
	}

	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
		raw:       raw,
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(name, "="); ok {
			if isBool[k] {
				b, err := ParseBoolString(v)
				p.boolFlags[k] = err == nil && b
			} else {
				p.flags[k] = v
			}
			continue
		}

		if !isBool[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i++
			continue
		}
		p.boolFlags[name] = true
	}

	return p
}

// Subcommand returns the first positional argument, or "".
func (p *ArgParser) Subcommand() string {
	return p.Positional(0)
}

// Flag returns the value of the first name that was given.
func (p *ArgParser) Flag(names ...string) string {
	for _, n := range names {
		if v, ok := p.flags[n]; ok {
			return v
		}
	}
	return ""
}

// FlagOrDefault returns the flag value or defaultValue when absent.
func (p *ArgParser) FlagOrDefault(name, defaultValue string) string {
	if v, ok := p.flags[name]; ok {
		return v
	}
	return defaultValue
}

// BoolFlag reports whether any of names was set.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, n := range names {
		if p.boolFlags[n] {
			return true
		}
	}
	return false
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns the positionals starting at index.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index >= len(p.positional) {
		return nil
	}
	return p.positional[index:]
}

// HasFlag reports whether name was given in either form.
func (p *ArgParser) HasFlag(name string) bool {
	_, ok := p.flags[name]
	return ok || p.boolFlags[name]
}

// Raw returns the original arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// =============================================================================
// VALUE PARSING
// =============================================================================

// ParseIntWithValidation parses a positive integer for fieldName.
func ParseIntWithValidation(s string, fieldName string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a number", fieldName, s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", fieldName, v)
	}
	return v, nil
}

// ParseFloatWithValidation parses a non-negative float for fieldName.
func ParseFloatWithValidation(s string, fieldName string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a number", fieldName, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative, got %g", fieldName, v)
	}
	return v, nil
}

// ParseBoolString accepts true/false, yes/no, on/off and 1/0.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %q", s)
}
