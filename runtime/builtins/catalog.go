// Package builtins loads the table of builtin functions available to source
// programs. Each entry names its parameters, effects, and the shell template
// it lowers to. Catalogs are data: JSONC or YAML documents validated against
// an embedded JSON Schema before they are decoded.
package builtins

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/jsonc"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/opal-lang/rash/core/invariant"
	"github.com/opal-lang/rash/core/types"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed catalog.jsonc
var defaultCatalog []byte

// ErrIncompatibleRuntime is returned when a catalog needs a runtime library
// the caller does not provide.
var ErrIncompatibleRuntime = errors.New("incompatible runtime library")

// Kind determines where a builtin may appear and what it produces.
type Kind string

const (
	KindCommand Kind = "command" // Statement-level command
	KindTest    Kind = "test"    // Condition; the result is the exit status
	KindValue   Kind = "value"   // Word fragment producing a string
)

// Returns is the source type of a call to a builtin of this kind.
func (k Kind) Returns() types.Type {
	switch k {
	case KindCommand:
		return types.Unit
	case KindTest:
		return types.Bool
	case KindValue:
		return types.Str
	default:
		return types.Invalid
	}
}

// Param describes one builtin parameter.
type Param struct {
	Name    string
	Type    types.Type
	Literal bool           // Argument must be a literal
	Pattern *regexp.Regexp // Required shape of a literal Str argument
	Min     *int64         // Bounds of a literal I32 argument
	Max     *int64
}

// CheckString checks a literal Str argument against the parameter's pattern.
func (p Param) CheckString(s string) error {
	if p.Pattern != nil && !p.Pattern.MatchString(s) {
		return fmt.Errorf("%q does not match %s", s, p.Pattern)
	}
	return nil
}

// CheckInt checks a literal I32 argument against the parameter's bounds.
func (p Param) CheckInt(n int64) error {
	if p.Min != nil && n < *p.Min {
		return fmt.Errorf("%d is below the minimum %d", n, *p.Min)
	}
	if p.Max != nil && n > *p.Max {
		return fmt.Errorf("%d is above the maximum %d", n, *p.Max)
	}
	return nil
}

// Builtin is one catalog entry.
type Builtin struct {
	Name     string
	Kind     Kind
	Doc      string
	Params   []Param
	Effects  types.EffectSet
	Pure     bool // Result is Literal when every argument is
	Template Template
}

// Returns is the source type of a call.
func (b *Builtin) Returns() types.Type {
	return b.Kind.Returns()
}

// IsMacro reports whether the builtin is invoked as name!(...).
func (b *Builtin) IsMacro() bool {
	return strings.HasSuffix(b.Name, "!")
}

// Catalog is an immutable set of builtins, safe for concurrent use.
type Catalog struct {
	requiresRuntime string
	byName          map[string]*Builtin
	names           []string
}

// Lookup returns the builtin called name (macros include the "!").
func (c *Catalog) Lookup(name string) (*Builtin, bool) {
	b, ok := c.byName[name]
	return b, ok
}

// Names returns all builtin names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of builtins.
func (c *Catalog) Len() int {
	return len(c.names)
}

// RequiresRuntime returns the minimum runtime library version.
func (c *Catalog) RequiresRuntime() string {
	return c.requiresRuntime
}

// CheckRuntime reports whether a runtime library at version can serve this
// catalog: same major version, and not older than required.
func (c *Catalog) CheckRuntime(version string) error {
	if !semver.IsValid(version) {
		return fmt.Errorf("%w: invalid version %q", ErrIncompatibleRuntime, version)
	}
	if semver.Major(version) != semver.Major(c.requiresRuntime) {
		return fmt.Errorf("%w: catalog requires %s, runtime is %s", ErrIncompatibleRuntime, c.requiresRuntime, version)
	}
	if semver.Compare(version, c.requiresRuntime) < 0 {
		return fmt.Errorf("%w: catalog requires %s or newer, runtime is %s", ErrIncompatibleRuntime, c.requiresRuntime, version)
	}
	return nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the catalog shipped with the module. It is built once and
// shared.
func Default() *Catalog {
	defaultOnce.Do(func() {
		cat, err := LoadJSON(defaultCatalog)
		invariant.ExpectNoError(err, "embedded builtin catalog")
		defaultCat = cat
	})
	return defaultCat
}

// DefaultSource returns the JSONC text of the default catalog.
func DefaultSource() []byte {
	return bytes.Clone(defaultCatalog)
}

// LoadJSON loads a catalog from JSON. Comments and trailing commas (JSONC)
// are accepted.
func LoadJSON(data []byte) (*Catalog, error) {
	return load(jsonc.ToJSON(data))
}

// LoadYAML loads a catalog from YAML.
func LoadYAML(data []byte) (*Catalog, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	converted, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return load(converted)
}

type catalogFile struct {
	RequiresRuntime string        `json:"requires_runtime"`
	Builtins        []builtinFile `json:"builtins"`
}

type builtinFile struct {
	Name     string      `json:"name"`
	Kind     Kind        `json:"kind"`
	Doc      string      `json:"doc"`
	Params   []paramFile `json:"params"`
	Effects  []string    `json:"effects"`
	Pure     bool        `json:"pure"`
	Template string      `json:"template"`
}

type paramFile struct {
	Name    string     `json:"name"`
	Type    types.Type `json:"type"`
	Literal bool       `json:"literal"`
	Pattern string     `json:"pattern"`
	Min     *int64     `json:"min"`
	Max     *int64     `json:"max"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func catalogSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		url := "rash://builtins/catalog.json"
		if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(url)
	})
	return schema, schemaErr
}

func load(data []byte) (*Catalog, error) {
	sch, err := catalogSchema()
	invariant.ExpectNoError(err, "embedded catalog schema")

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("catalog does not match schema: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	cat := &Catalog{
		requiresRuntime: file.RequiresRuntime,
		byName:          make(map[string]*Builtin, len(file.Builtins)),
	}
	if !semver.IsValid(cat.requiresRuntime) {
		return nil, fmt.Errorf("catalog: invalid requires_runtime %q", cat.requiresRuntime)
	}
	for i := range file.Builtins {
		b, err := decodeBuiltin(&file.Builtins[i])
		if err != nil {
			return nil, fmt.Errorf("builtin %q: %w", file.Builtins[i].Name, err)
		}
		if _, dup := cat.byName[b.Name]; dup {
			return nil, fmt.Errorf("builtin %q: defined more than once", b.Name)
		}
		cat.byName[b.Name] = b
		cat.names = append(cat.names, b.Name)
	}
	sort.Strings(cat.names)
	return cat, nil
}

func decodeBuiltin(f *builtinFile) (*Builtin, error) {
	b := &Builtin{Name: f.Name, Kind: f.Kind, Doc: f.Doc, Pure: f.Pure}

	for _, name := range f.Effects {
		e, err := types.ParseEffect(name)
		if err != nil {
			return nil, err
		}
		b.Effects = b.Effects.Union(types.NewEffectSet(e))
	}
	if b.Pure && !b.Effects.IsPure() {
		return nil, fmt.Errorf("pure builtin declares effects %s", b.Effects)
	}

	seen := make(map[string]bool, len(f.Params))
	for _, pf := range f.Params {
		if seen[pf.Name] {
			return nil, fmt.Errorf("duplicate parameter %q", pf.Name)
		}
		seen[pf.Name] = true

		p := Param{Name: pf.Name, Type: pf.Type, Literal: pf.Literal, Min: pf.Min, Max: pf.Max}
		if pf.Pattern != "" {
			if p.Type != types.Str || !p.Literal {
				return nil, fmt.Errorf("parameter %q: pattern requires a literal str parameter", pf.Name)
			}
			re, err := regexp.Compile(pf.Pattern)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", pf.Name, err)
			}
			p.Pattern = re
		}
		if p.Min != nil || p.Max != nil {
			if p.Type != types.I32 || !p.Literal {
				return nil, fmt.Errorf("parameter %q: bounds require a literal i32 parameter", pf.Name)
			}
			if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
				return nil, fmt.Errorf("parameter %q: min %d exceeds max %d", pf.Name, *p.Min, *p.Max)
			}
		}
		b.Params = append(b.Params, p)
	}

	if b.IsMacro() {
		if b.Kind != KindCommand || len(b.Params) != 1 || b.Params[0].Type != types.Str || b.Params[0].Literal {
			return nil, errors.New("macros must be commands taking one non-literal str parameter")
		}
	}

	tmpl, err := ParseTemplate(f.Template, b.Kind, b.Params)
	if err != nil {
		return nil, err
	}
	for i, p := range b.Params {
		if !tmpl.Uses(i) {
			return nil, fmt.Errorf("parameter %q is not used by the template", p.Name)
		}
	}
	b.Template = tmpl
	return b, nil
}
