package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var symbolCodeRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// Symbol describes one tradable code and its seed price.
type Symbol struct {
	Code         string
	Name         string
	InitialPrice float64
	Description  string
}

// SymbolSet is the closed, immutable set of tradable symbols fixed at
// startup. It needs no locking because it never changes after creation.
type SymbolSet struct {
	ordered []Symbol
	byCode  map[string]Symbol
}

// NewSymbolSet validates the given symbols and builds a set preserving
// their order.
func NewSymbolSet(symbols []Symbol) (*SymbolSet, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}
	set := &SymbolSet{
		ordered: make([]Symbol, 0, len(symbols)),
		byCode:  make(map[string]Symbol, len(symbols)),
	}
	for _, s := range symbols {
		if !symbolCodeRegex.MatchString(s.Code) {
			return nil, fmt.Errorf("symbol code %q must match ^[A-Z]{1,10}$", s.Code)
		}
		if _, dup := set.byCode[s.Code]; dup {
			return nil, fmt.Errorf("duplicate symbol %q", s.Code)
		}
		if s.InitialPrice <= 0 {
			return nil, fmt.Errorf("symbol %q: initial price must be > 0", s.Code)
		}
		set.ordered = append(set.ordered, s)
		set.byCode[s.Code] = s
	}
	return set, nil
}

// Normalize upper-cases and trims a user supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Exists returns true if code belongs to the set.
func (s *SymbolSet) Exists(code string) bool {
	_, ok := s.byCode[code]
	return ok
}

// Get returns the symbol for code.
func (s *SymbolSet) Get(code string) (Symbol, bool) {
	sym, ok := s.byCode[code]
	return sym, ok
}

// Codes returns the symbol codes in configuration order.
func (s *SymbolSet) Codes() []string {
	codes := make([]string, len(s.ordered))
	for i, sym := range s.ordered {
		codes[i] = sym.Code
	}
	return codes
}

// All returns a copy of the symbols in configuration order.
func (s *SymbolSet) All() []Symbol {
	out := make([]Symbol, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Primary returns the first configured symbol.
func (s *SymbolSet) Primary() Symbol {
	return s.ordered[0]
}
