package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/happensbefore/internal/ir"
)

// BuiltinSTS names the embedded STS OpenFlow schema.
const BuiltinSTS = "builtin:sts"

//go:embed sts.cue
var stsSource string

// ErrNotFound is returned when a schema path does not exist.
var ErrNotFound = errors.New("schema not found")

// Default compiles and validates the embedded STS OpenFlow schema.
func Default() (*ir.Schema, error) {
	return CompileSource("sts", "sts.cue", []byte(stsSource))
}

// Load resolves a schema reference: empty or BuiltinSTS for the embedded
// schema, a .cue file, or a directory holding one CUE package.
func Load(ref string) (*ir.Schema, error) {
	if ref == "" || ref == BuiltinSTS {
		return Default()
	}

	info, err := os.Stat(ref)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("stat schema %s: %w", ref, err)
	}
	if info.IsDir() {
		return LoadDir(ref)
	}

	src, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", ref, err)
	}
	name := strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref))
	return CompileSource(name, ref, src)
}

// LoadDir loads the CUE package in dir, compiles and validates it.
func LoadDir(dir string) (*ir.Schema, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load schema %s: no CUE instances", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load schema %s: %w", dir, inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileAndValidate(filepath.Base(filepath.Clean(dir)), value)
}

// CompileSource compiles CUE source text, then validates the result.
func CompileSource(name, filename string, src []byte) (*ir.Schema, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileAndValidate(name, value)
}

func compileAndValidate(name string, value cue.Value) (*ir.Schema, error) {
	s, err := Compile(name, value)
	if err != nil {
		return nil, err
	}
	if errs := Validate(s); len(errs) > 0 {
		return nil, errs
	}
	return s, nil
}
