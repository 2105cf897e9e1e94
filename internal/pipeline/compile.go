package pipeline

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/oilflow/internal/workflow"
)

//go:embed pipeline.cue
var defaultSource []byte

var defaultPipeline = sync.OnceValue(func() *Pipeline {
	p, err := Compile(defaultSource, "pipeline.cue")
	if err != nil {
		panic(fmt.Sprintf("pipeline: embedded definition: %v", err))
	}
	return p
})

// Default returns the built-in twelve-stage pipeline.
func Default() *Pipeline {
	return defaultPipeline()
}

// Load compiles the pipeline definition at path.
// An empty path returns the built-in pipeline.
func Load(path string) (*Pipeline, error) {
	if path == "" {
		return Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	return Compile(src, path)
}

// Compile parses a CUE pipeline document. The document must unify with the
// #Stage schema and declare a top-level stages list.
func Compile(src []byte, filename string) (*Pipeline, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	stagesVal := v.LookupPath(cue.ParsePath("stages"))
	if !stagesVal.Exists() {
		return nil, &CompileError{
			Field:   "stages",
			Message: "stages is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := stagesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []StageDef
	for iter.Next() {
		def, err := compileStage(iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return New(defs)
}

func compileStage(v cue.Value) (StageDef, error) {
	var (
		def StageDef
		err error
		id  string
	)

	if id, err = stringField(v, "id"); err != nil {
		return def, err
	}
	if id == "" {
		return def, &CompileError{Field: "id", Message: "id is required", Pos: v.Pos()}
	}
	def.ID = workflow.Stage(id)

	if def.Slug, err = stringField(v, "slug"); err != nil {
		return def, err
	}
	if def.Aliases, err = stringsField(v, "aliases"); err != nil {
		return def, err
	}

	upstream, err := stringField(v, "upstream")
	if err != nil {
		return def, err
	}
	def.Upstream = workflow.Stage(upstream)

	if def.Accepted, err = statusesField(v, "accepted"); err != nil {
		return def, err
	}
	if def.Terminal, err = statusesField(v, "terminal"); err != nil {
		return def, err
	}
	if def.Outcomes, err = statusesField(v, "outcomes"); err != nil {
		return def, err
	}
	if def.Rejective, err = boolField(v, "rejective"); err != nil {
		return def, err
	}
	if def.SideList, err = stringField(v, "side_list"); err != nil {
		return def, err
	}
	if def.Feeds, err = stringField(v, "feeds"); err != nil {
		return def, err
	}

	skip, err := stringsField(v, "skip_for")
	if err != nil {
		return def, err
	}
	for _, t := range skip {
		def.SkipFor = append(def.SkipFor, workflow.OrderType(t))
	}

	if def.Required, err = stringsField(v, "required"); err != nil {
		return def, err
	}
	if def.TargetDate, err = stringField(v, "target_date"); err != nil {
		return def, err
	}
	if def.FilterDate, err = stringField(v, "filter_date"); err != nil {
		return def, err
	}

	return def, nil
}

// field resolves a struct field to its default value.
// The boolean is false when the field is absent.
func field(v cue.Value, name string) (cue.Value, bool) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return f, false
	}
	if d, ok := f.Default(); ok {
		return d, true
	}
	return f, true
}

func stringField(v cue.Value, name string) (string, error) {
	f, ok := field(v, name)
	if !ok {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func boolField(v cue.Value, name string) (bool, error) {
	f, ok := field(v, name)
	if !ok {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringsField(v cue.Value, name string) ([]string, error) {
	f, ok := field(v, name)
	if !ok {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func statusesField(v cue.Value, name string) ([]workflow.Status, error) {
	names, err := stringsField(v, name)
	if err != nil {
		return nil, err
	}
	var out []workflow.Status
	for _, s := range names {
		out = append(out, workflow.Status(s))
	}
	return out, nil
}

// CompileError represents a pipeline definition error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
