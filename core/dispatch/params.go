package dispatch

import (
	"fmt"
	"strings"
)

type ParamKind int

const (
	// Positional consumes one argument.
	Positional ParamKind = iota
	// Variadic consumes arguments until the input ends or one fails.
	Variadic
	// KeywordOnly consumes the rest of the input and must come last.
	KeywordOnly
)

func (k ParamKind) String() string {
	switch k {
	case Positional:
		return "positional"
	case Variadic:
		return "variadic"
	case KeywordOnly:
		return "keyword-only"
	}
	return fmt.Sprintf("ParamKind(%d)", int(k))
}

// Param describes one command argument. A nil Converter is resolved from the
// type of Default when the command is built.
type Param struct {
	Name      string
	Kind      ParamKind
	Converter Converter
	Default   any
	Required  bool
}

// Arg is a required positional argument.
func Arg(name string, c Converter) Param {
	return Param{Name: name, Kind: Positional, Converter: c, Required: true}
}

// OptArg is a positional argument falling back to def.
func OptArg(name string, c Converter, def any) Param {
	return Param{Name: name, Kind: Positional, Converter: c, Default: def}
}

func VarArgs(name string, c Converter) Param {
	return Param{Name: name, Kind: Variadic, Converter: c}
}

// Rest consumes everything after the preceding arguments.
func Rest(name string, c Converter) Param {
	return Param{Name: name, Kind: KeywordOnly, Converter: c, Required: true}
}

// OptRest is Rest with a default for empty input.
func OptRest(name string, c Converter, def any) Param {
	return Param{Name: name, Kind: KeywordOnly, Converter: c, Default: def}
}

// Usage renders the parameter the way help output shows it.
func (p Param) Usage() string {
	switch {
	case p.Kind == Variadic:
		return "[" + p.Name + "...]"
	case !p.Required && p.Default != nil:
		return fmt.Sprintf("[%s=%v]", p.Name, p.Default)
	case !p.Required || isOptional(p.Converter):
		return "[" + p.Name + "]"
	case p.Kind == KeywordOnly:
		return "<" + p.Name + "...>"
	}
	return "<" + p.Name + ">"
}

func invalidSignature(format string, v ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSignature, fmt.Sprintf(format, v...))
}

// resolveParams fills missing converters and validates the ordering rules.
func resolveParams(params []Param) ([]Param, error) {
	resolved := make([]Param, len(params))
	names := map[string]bool{}
	seenVariadic, seenRest := false, false

	for i, p := range params {
		if strings.TrimSpace(p.Name) == "" {
			return nil, invalidSignature("parameter %d has no name", i)
		}
		if names[p.Name] {
			return nil, invalidSignature("duplicate parameter %q", p.Name)
		}
		names[p.Name] = true

		if p.Converter == nil {
			p.Converter = converterForValue(p.Default)
		}
		if err := validateConverter(p); err != nil {
			return nil, err
		}

		switch p.Kind {
		case Positional:
			if seenVariadic || seenRest {
				return nil, invalidSignature("positional parameter %q after a variadic or rest parameter", p.Name)
			}
		case Variadic:
			if seenVariadic || seenRest {
				return nil, invalidSignature("variadic parameter %q must be the only one and precede the rest parameter", p.Name)
			}
			seenVariadic = true
		case KeywordOnly:
			if seenRest {
				return nil, invalidSignature("more than one rest parameter")
			}
			seenRest = true
		default:
			return nil, invalidSignature("parameter %q has unknown kind %d", p.Name, int(p.Kind))
		}
		resolved[i] = p
	}
	return resolved, nil
}

func validateConverter(p Param) error {
	g, ok := p.Converter.(*greedyConverter)
	if !ok {
		return nil
	}
	switch inner := g.converter.(type) {
	case nil:
		return invalidSignature("Greedy on %q has no converter", p.Name)
	case *greedyConverter:
		return invalidSignature("Greedy[Greedy] on %q is not allowed", p.Name)
	case *noneConverter:
		return invalidSignature("Greedy[None] on %q is not allowed", p.Name)
	case *unionConverter:
		if isOptional(inner) {
			return invalidSignature("Greedy[Optional] on %q is not allowed", p.Name)
		}
	case Parser:
		if inner.Name == String.Name {
			return invalidSignature("Greedy[str] on %q consumes everything, use Rest", p.Name)
		}
	}
	return nil
}
