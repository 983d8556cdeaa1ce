package checkpoint

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParamKind is the primitive encoding recognized for a parameter value.
type ParamKind int

const (
	// ParamString is the fallback encoding.
	ParamString ParamKind = iota
	// ParamInt is a base-10 integer.
	ParamInt
	// ParamFloat is a decimal or scientific floating point number.
	ParamFloat
	// ParamBool is True/False in either capitalization.
	ParamBool
)

// Param is a typed parameter value recovered from a results path.
type Param struct {
	Kind  ParamKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

func (p Param) String() string {
	switch p.Kind {
	case ParamInt:
		return strconv.FormatInt(p.Int, 10)
	case ParamFloat:
		return FormatFloat(p.Float)
	case ParamBool:
		if p.Bool {
			return "True"
		}
		return "False"
	default:
		return p.Str
	}
}

// ParseParam decodes a raw token value, trying integer, float and boolean encodings before
// falling back to the raw string.
func ParseParam(raw string) Param {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Param{Kind: ParamInt, Int: i}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Param{Kind: ParamFloat, Float: f}
	}
	switch raw {
	case "True", "true":
		return Param{Kind: ParamBool, Bool: true}
	case "False", "false":
		return Param{Kind: ParamBool, Bool: false}
	}
	return Param{Kind: ParamString, Str: raw}
}

// FormatFloat renders a float the way results paths and export names spell them: integral
// values keep a trailing ".0".
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// DomainKey is the key under which ParseResultsPath stores the domain.
const DomainKey = "domain"

const baselinesMarker = "baselines"

// abbreviations maps the short parameter names used in results file names to their full names.
var abbreviations = map[string]string{
	"fs":         "frontierSize",
	"DSL":        "useDSL",
	"TRR":        "taskReranker",
	"MR":         "matrixRank",
	"SR":         "splitRatio",
	"MF":         "maximumFrontier",
	"it":         "iterations",
	"RD":         "resultsDirectory",
	"batch":      "taskBatchSize",
	"pc":         "pseudoCounts",
	"aux":        "auxiliaryLoss",
	"L":          "structurePenalty",
	"HR":         "helmholtzRatio",
	"BO":         "biasOptimal",
	"CO":         "contextual",
	"K":          "topK",
	"ET":         "enumerationTimeout",
	"rec":        "useRecognitionModel",
	"llcut":      "use_ll_cutoff",
	"topkNotMAP": "topk_use_only_likelihood",
	"act":        "activation",
	"STM":        "storeTaskMetrics",
	"RW":         "rewriteTaskMetrics",
}

// ParameterOfAbbreviation expands a results-path parameter abbreviation. Unknown names are
// returned unchanged.
func ParameterOfAbbreviation(abbreviation string) string {
	if full, ok := abbreviations[abbreviation]; ok {
		return full
	}
	return abbreviation
}

// Params is the bunch of parameters recovered from a results path.
type Params map[string]Param

// Domain returns the domain the results path was produced for.
func (p Params) Domain() string {
	return p[DomainKey].Str
}

// Int returns an integer parameter. Floats with an integral value are accepted.
func (p Params) Int(key string) (int64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case ParamInt:
		return v.Int, true
	case ParamFloat:
		if v.Float == float64(int64(v.Float)) {
			return int64(v.Float), true
		}
	}
	return 0, false
}

// Float returns a numeric parameter as a float.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case ParamInt:
		return float64(v.Int), true
	case ParamFloat:
		return v.Float, true
	}
	return 0, false
}

// Bool returns a boolean parameter.
func (p Params) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok || v.Kind != ParamBool {
		return false, false
	}
	return v.Bool, true
}

// String returns the textual form of any parameter.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	return v.String(), true
}

// ParseResultsPath recovers the domain and parameters encoded in a results file name of the form
// "<domain>_<key>=<value>_..._[baselines].<ext>".
func ParseResultsPath(path string) (Params, error) {
	base := filepath.Base(path)
	if dot := strings.LastIndex(base, "."); dot >= 0 {
		base = base[:dot]
	}
	underscore := strings.Index(base, "_")
	if underscore <= 0 {
		return nil, errors.Errorf("results path %q does not start with <domain>_", path)
	}

	rest := strings.Split(base, "_")[1:]
	if len(rest) > 0 && rest[len(rest)-1] == baselinesMarker {
		rest = rest[:len(rest)-1]
	}

	params := Params{DomainKey: {Kind: ParamString, Str: base[:underscore]}}
	for _, binding := range rest {
		kv := strings.Split(binding, "=")
		if len(kv) != 2 {
			continue
		}
		params[ParameterOfAbbreviation(kv[0])] = ParseParam(kv[1])
	}
	return params, nil
}

// FormattedName is the display name of a task: "lambda" is shortened to "λ" and names longer
// than 100 characters are split over two lines.
func FormattedName(name string) string {
	raw := strings.ReplaceAll(name, lambdaToken, "λ")
	runes := []rune(raw)
	if len(runes) > 100 {
		return fmt.Sprintf("%s\n%s", string(runes[:50]), string(runes[50:]))
	}
	return raw
}
