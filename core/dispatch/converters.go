package dispatch

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// Converter turns one raw argument into a typed value.
type Converter interface {
	Convert(ctx *Context, argument string) (any, error)
}

// ConverterFunc adapts a function to Converter. Errors that are not
// CommandErrors are reported as ConversionError.
type ConverterFunc func(ctx *Context, argument string) (any, error)

func (f ConverterFunc) Convert(ctx *Context, argument string) (any, error) {
	return f(ctx, argument)
}

// Parser is a plain one argument parser. Its failures become BadArgument
// naming the parameter and Name.
type Parser struct {
	Name  string
	Parse func(string) (any, error)
}

func (p Parser) Convert(_ *Context, argument string) (any, error) {
	return p.Parse(argument)
}

type boolConverter struct{}

func (boolConverter) Convert(_ *Context, argument string) (any, error) {
	return parseBool(argument)
}

var (
	String = Parser{Name: "str", Parse: func(s string) (any, error) { return s, nil }}
	Int    = Parser{Name: "int", Parse: func(s string) (any, error) { return strconv.Atoi(s) }}
	Int64  = Parser{Name: "int64", Parse: func(s string) (any, error) { return strconv.ParseInt(s, 10, 64) }}
	Float  = Parser{Name: "float", Parse: func(s string) (any, error) { return strconv.ParseFloat(s, 64) }}
	// Duration accepts Go durations ("90s", "1h30m") or a plain number of seconds.
	Duration = Parser{Name: "duration", Parse: parseDuration}
	Bool     Converter = boolConverter{}
	Mention  Converter = ConverterFunc(convertMention)
)

func parseDuration(s string) (any, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

var (
	truthy = []string{"yes", "y", "true", "t", "1", "enable", "on", "да", "включить", "правда"}
	falsy  = []string{"no", "n", "false", "f", "0", "disable", "off", "нет", "выключить", "ложь"}
)

func parseBool(argument string) (bool, error) {
	lowered := cases.Fold().String(argument)
	for _, w := range truthy {
		if lowered == w {
			return true, nil
		}
	}
	for _, w := range falsy {
		if lowered == w {
			return false, nil
		}
	}
	return false, &BadArgument{Message: fmt.Sprintf("%s is not a recognised boolean option", argument)}
}

var mentionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[id(\d+)\|[^\]]*\]$`),
	regexp.MustCompile(`^<@!?(\d+)>$`),
	regexp.MustCompile(`^@id(\d+)$`),
	regexp.MustCompile(`^(\d+)$`),
}

// convertMention resolves a user mention to the user's id.
func convertMention(_ *Context, argument string) (any, error) {
	for _, re := range mentionPatterns {
		if m := re.FindStringSubmatch(argument); m != nil {
			return m[1], nil
		}
	}
	return nil, &BadArgument{Message: fmt.Sprintf("User %q not found", argument)}
}

type noneConverter struct{}

func (*noneConverter) Convert(_ *Context, argument string) (any, error) {
	return nil, &BadArgument{Message: fmt.Sprintf("%q is not None", argument)}
}

// None is the "no value" union alternative.
var None Converter = &noneConverter{}

func isNone(c Converter) bool {
	_, ok := c.(*noneConverter)
	return ok
}

type unionConverter struct {
	alternatives []Converter
}

func (u *unionConverter) Convert(*Context, string) (any, error) {
	return nil, fmt.Errorf("%w: union converters are resolved by the command", ErrInvalidSignature)
}

// Union tries each alternative in order.
func Union(alternatives ...Converter) Converter {
	flat := make([]Converter, 0, len(alternatives))
	for _, a := range alternatives {
		if u, ok := a.(*unionConverter); ok {
			flat = append(flat, u.alternatives...)
			continue
		}
		flat = append(flat, a)
	}
	return &unionConverter{alternatives: flat}
}

// Optional is Union(c, None).
func Optional(c Converter) Converter {
	return Union(c, None)
}

func isOptional(c Converter) bool {
	u, ok := c.(*unionConverter)
	if !ok {
		return false
	}
	for _, a := range u.alternatives {
		if isNone(a) {
			return true
		}
	}
	return false
}

type greedyConverter struct {
	converter Converter
}

func (g *greedyConverter) Convert(*Context, string) (any, error) {
	return nil, fmt.Errorf("%w: greedy converters are resolved by the command", ErrInvalidSignature)
}

// Greedy consumes arguments until the first one that fails to convert.
func Greedy(c Converter) Converter {
	return &greedyConverter{converter: c}
}

func converterName(c Converter) string {
	switch v := c.(type) {
	case Parser:
		return v.Name
	case *Parser:
		return v.Name
	case boolConverter:
		return "bool"
	case *noneConverter:
		return "None"
	case *unionConverter:
		return "Union"
	case *greedyConverter:
		return "Greedy[" + converterName(v.converter) + "]"
	case ConverterFunc:
		return "converter"
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%T", c)
}

var (
	typesMu sync.RWMutex
	types   = map[reflect.Type]Converter{
		reflect.TypeOf(""):               String,
		reflect.TypeOf(0):                Int,
		reflect.TypeOf(int64(0)):         Int64,
		reflect.TypeOf(0.0):              Float,
		reflect.TypeOf(false):            Bool,
		reflect.TypeOf(time.Duration(0)): Duration,
	}
)

// RegisterType makes c the converter for parameters whose default has type t.
func RegisterType(t reflect.Type, c Converter) {
	typesMu.Lock()
	defer typesMu.Unlock()
	types[t] = c
}

func converterForValue(v any) Converter {
	if v == nil {
		return String
	}
	typesMu.RLock()
	defer typesMu.RUnlock()
	if c, ok := types[reflect.TypeOf(v)]; ok {
		return c
	}
	return String
}

func (c *Command) actualConversion(ctx *Context, conv Converter, argument string, param Param) (any, error) {
	switch conv.(type) {
	case boolConverter:
		return parseBool(argument)
	case Parser, *Parser:
		value, err := conv.Convert(ctx, argument)
		if err != nil {
			return nil, &BadArgument{
				Message: fmt.Sprintf("Converting to %q failed for parameter %q.", converterName(conv), param.Name),
				Cause:   err,
			}
		}
		return value, nil
	}

	value, err := conv.Convert(ctx, argument)
	if err != nil {
		if IsCommandError(err) {
			return nil, err
		}
		return nil, &ConversionError{Converter: conv, Cause: err}
	}
	return value, nil
}

func (c *Command) doConversion(ctx *Context, conv Converter, argument string, param Param) (any, error) {
	union, ok := conv.(*unionConverter)
	if !ok {
		return c.actualConversion(ctx, conv, argument, param)
	}

	var errs []error
	for _, alt := range union.alternatives {
		// earlier alternatives failed: put the word back and fall through to
		// the default so later parameters can use it
		if isNone(alt) && param.Kind != Variadic {
			ctx.View.Undo()
			if param.Required {
				return nil, nil
			}
			return param.Default, nil
		}
		value, err := c.actualConversion(ctx, alt, argument, param)
		if err == nil {
			return value, nil
		}
		errs = append(errs, err)
	}
	return nil, &BadUnionArgument{Param: param, Converters: union.alternatives, Errors: errs}
}
