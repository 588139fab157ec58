// Package compiler reads type declarations for array element types.
//
// The input is line oriented. Each non-blank line declares one type; text
// after '#' is ignored:
//
//	abstract  Shape
//	primitive Fixed16 2
//	struct    Point<:Shape  x:Float64 y:Float64
//	struct    Named         id:Int64 name:String
//	mutable   Node          value:Any next:Any
//	union     Num           Int32 Float64 Nothing
//
// A name may carry a supertype with "<:", which must name an abstract type.
// Types can only refer to builtins and to types declared on earlier lines.
package compiler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sbl8/arraycore/model"
)

// CompileFile parses the declarations in path.
func CompileFile(path string) (*model.Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := ParseTypes(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// ParseTypes parses declarations into a registry preloaded with the builtins.
func ParseTypes(src []byte) (*model.Registry, error) {
	p := &dslParser{reg: model.NewRegistry()}
	for i, line := range strings.Split(string(src), "\n") {
		if j := strings.IndexByte(line, '#'); j >= 0 {
			line = line[:j]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := p.parseLine(fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return p.reg, nil
}

type dslParser struct {
	reg *model.Registry
}

func (p *dslParser) parseLine(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("%s: missing type name", fields[0])
	}
	name, super, err := p.parseName(fields[1])
	if err != nil {
		return err
	}
	rest := fields[2:]

	var t *model.Type
	switch fields[0] {
	case "abstract":
		if len(rest) != 0 {
			return fmt.Errorf("abstract %s: unexpected %q", name, rest[0])
		}
		t = model.NewAbstract(name, super)
	case "primitive":
		if t, err = parsePrimitive(name, super, rest); err != nil {
			return err
		}
	case "struct", "mutable":
		specs, err := p.parseFields(name, rest)
		if err != nil {
			return err
		}
		if fields[0] == "struct" {
			t, err = model.NewStruct(name, super, specs)
		} else {
			t, err = model.NewMutable(name, super, specs)
		}
		if err != nil {
			return err
		}
	case "union":
		if super != nil {
			return fmt.Errorf("union %s: unions take no supertype", name)
		}
		arms := make([]*model.Type, 0, len(rest))
		for _, a := range rest {
			at, err := p.lookup(a)
			if err != nil {
				return err
			}
			arms = append(arms, at)
		}
		if t, err = model.NewUnion(name, arms...); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown declaration %q", fields[0])
	}
	return p.reg.Define(t)
}

// parseName splits "Name<:Super".
func (p *dslParser) parseName(s string) (string, *model.Type, error) {
	name, superName, hasSuper := strings.Cut(s, "<:")
	if !validIdent(name) {
		return "", nil, fmt.Errorf("invalid type name %q", name)
	}
	if !hasSuper {
		return name, nil, nil
	}
	super, err := p.lookup(superName)
	if err != nil {
		return "", nil, err
	}
	if super.Kind != model.KindAbstract {
		return "", nil, fmt.Errorf("%s: supertype %s is not abstract", name, super)
	}
	return name, super, nil
}

func (p *dslParser) parseFields(owner string, toks []string) ([]model.FieldSpec, error) {
	specs := make([]model.FieldSpec, 0, len(toks))
	for _, tok := range toks {
		fname, tname, ok := strings.Cut(tok, ":")
		if !ok || !validIdent(fname) {
			return nil, fmt.Errorf("%s: malformed field %q, want name:Type", owner, tok)
		}
		ft, err := p.lookup(tname)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", owner, fname, err)
		}
		specs = append(specs, model.FieldSpec{Name: fname, Type: ft})
	}
	return specs, nil
}

func parsePrimitive(name string, super *model.Type, rest []string) (*model.Type, error) {
	if len(rest) != 1 {
		return nil, fmt.Errorf("primitive %s: want a byte size", name)
	}
	size, err := strconv.Atoi(rest[0])
	if err != nil {
		return nil, fmt.Errorf("primitive %s: %w", name, err)
	}
	switch size {
	case 0, 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("primitive %s: size %d is not 0, 1, 2, 4, 8 or 16", name, size)
	}
	return model.NewPrimitive(name, size, super), nil
}

func (p *dslParser) lookup(name string) (*model.Type, error) {
	t, ok := p.reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
