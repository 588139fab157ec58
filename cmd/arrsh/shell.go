package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/sbl8/arraycore/array"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/runtime"
)

var errQuit = errors.New("quit")

const help = `commands:
  new NAME TYPE DIM...        allocate an array (TYPE from the registry)
  fromstr NAME "text"         byte array sharing a new string's buffer
  push NAME VALUE             append one element
  get NAME I                  print element I (0-based)
  set NAME I VALUE            store VALUE at I
  unset NAME I                clear a reference slot
  grow NAME beg|end N         insert N uninitialized slots at an end
  grow NAME at I N            insert N slots before I
  del NAME beg|end N          remove N elements at an end
  del NAME at I N             remove N elements starting at I
  hint NAME N                 set the capacity hint
  reshape NEW NAME DIM...     new header sharing NAME's data
  str NAME                    convert a byte array to a string
  info [NAME]                 header summary
  dump NAME                   detailed header and elements
  pin NAME / unpin NAME       keep NAME alive across gc without naming it
  gc [NAME...]                collect, keeping the named and pinned arrays (default all)
  stats                       heap counters
  quit
`

type shell struct {
	heap   *runtime.Heap
	types  *model.Registry
	arrays map[string]*array.Array
	pinned map[string]bool
	out    io.Writer
}

func newShell(h *runtime.Heap, types *model.Registry, out io.Writer) *shell {
	return &shell{heap: h, types: types, arrays: make(map[string]*array.Array), pinned: make(map[string]bool), out: out}
}

// exec runs one command line. It returns errQuit on quit.
func (s *shell) exec(line string) error {
	args, err := splitArgs(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		fmt.Fprint(s.out, help)
		return nil
	case "new":
		return s.cmdNew(args)
	case "fromstr":
		return s.cmdFromString(args)
	case "push":
		return s.cmdPush(args)
	case "get":
		return s.cmdGet(args)
	case "set":
		return s.cmdSet(args)
	case "unset":
		return s.cmdUnset(args)
	case "grow":
		return s.cmdGrow(args)
	case "del":
		return s.cmdDel(args)
	case "hint":
		return s.cmdHint(args)
	case "reshape":
		return s.cmdReshape(args)
	case "str":
		return s.cmdStr(args)
	case "info":
		return s.cmdInfo(args)
	case "dump":
		return s.cmdDump(args)
	case "pin", "unpin":
		return s.cmdPin(cmd == "pin", args)
	case "gc":
		return s.cmdGC(args)
	case "stats":
		return s.cmdStats()
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (s *shell) cmdNew(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: new NAME TYPE DIM...")
	}
	t, ok := s.types.Lookup(args[1])
	if !ok {
		return fmt.Errorf("unknown type %q", args[1])
	}
	dims, err := ints(args[2:])
	if err != nil {
		return err
	}
	a, err := array.New(s.heap, t, dims...)
	if err != nil {
		return err
	}
	s.arrays[args[0]] = a
	fmt.Fprintln(s.out, a)
	return nil
}

func (s *shell) cmdFromString(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf(`usage: fromstr NAME "text"`)
	}
	text, err := unquote(args[1])
	if err != nil {
		return err
	}
	str, err := s.heap.StringFromBytes([]byte(text))
	if err != nil {
		return err
	}
	a := array.FromString(s.heap, str)
	s.arrays[args[0]] = a
	fmt.Fprintln(s.out, a)
	return nil
}

func (s *shell) cmdPush(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: push NAME VALUE")
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	v, err := s.literal(a.ElType(), args[1])
	if err != nil {
		return err
	}
	return a.Push(v)
}

func (s *shell) cmdGet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: get NAME I")
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	i, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	v, err := a.Get(i)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, s.format(v))
	return nil
}

func (s *shell) cmdSet(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: set NAME I VALUE")
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	i, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	v, err := s.literal(a.ElType(), args[2])
	if err != nil {
		return err
	}
	return a.Set(i, v)
}

func (s *shell) cmdUnset(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: unset NAME I")
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	i, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	return a.Unset(i)
}

// endArgs parses "NAME beg|end N" and "NAME at I N".
func (s *shell) endArgs(cmd string, args []string) (*array.Array, string, int, int, error) {
	if len(args) < 3 {
		return nil, "", 0, 0, fmt.Errorf("usage: %s NAME beg|end N | %s NAME at I N", cmd, cmd)
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return nil, "", 0, 0, err
	}
	where := args[1]
	nums, err := ints(args[2:])
	if err != nil {
		return nil, "", 0, 0, err
	}
	switch {
	case where == "at" && len(nums) == 2:
		return a, where, nums[0], nums[1], nil
	case (where == "beg" || where == "end") && len(nums) == 1:
		return a, where, 0, nums[0], nil
	}
	return nil, "", 0, 0, fmt.Errorf("usage: %s NAME beg|end N | %s NAME at I N", cmd, cmd)
}

func (s *shell) cmdGrow(args []string) error {
	a, where, idx, n, err := s.endArgs("grow", args)
	if err != nil {
		return err
	}
	switch where {
	case "beg":
		err = a.GrowBeg(n)
	case "end":
		err = a.GrowEnd(n)
	default:
		err = a.GrowAt(idx, n)
	}
	if err == nil {
		fmt.Fprintln(s.out, a)
	}
	return err
}

func (s *shell) cmdDel(args []string) error {
	a, where, idx, n, err := s.endArgs("del", args)
	if err != nil {
		return err
	}
	switch where {
	case "beg":
		err = a.DeleteBeg(n)
	case "end":
		err = a.DeleteEnd(n)
	default:
		err = a.DeleteAt(idx, n)
	}
	if err == nil {
		fmt.Fprintln(s.out, a)
	}
	return err
}

func (s *shell) cmdHint(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: hint NAME N")
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	if err := a.SizeHint(n); err != nil {
		return err
	}
	fmt.Fprintln(s.out, a)
	return nil
}

func (s *shell) cmdReshape(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: reshape NEW NAME DIM...")
	}
	a, err := s.lookup(args[1])
	if err != nil {
		return err
	}
	dims, err := ints(args[2:])
	if err != nil {
		return err
	}
	r, err := a.Reshape(dims...)
	if err != nil {
		return err
	}
	s.arrays[args[0]] = r
	fmt.Fprintln(s.out, r)
	return nil
}

func (s *shell) cmdStr(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: str NAME")
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	str, err := a.ToString()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%q (%s)\n", str.String(), str.Storage())
	return nil
}

func (s *shell) cmdInfo(args []string) error {
	names := args
	if len(names) == 0 {
		names = s.names()
	}
	for _, name := range names {
		a, err := s.lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%-8s %s dims=%v header=%dB\n", name, a, a.Dims(), a.HeaderBytes())
	}
	return nil
}

// headerDump is the printable view of an array header.
type headerDump struct {
	ElType      string
	Dims        []int
	Length      int
	Capacity    int
	Offset      int
	ElemSize    int
	HeaderBytes int
	Storage     string
	Flags       array.Flags
	Elements    []string
}

func (s *shell) cmdDump(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dump NAME")
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	d := headerDump{
		ElType:      a.ElType().String(),
		Dims:        a.Dims(),
		Length:      a.Len(),
		Capacity:    a.Capacity(),
		Offset:      a.Offset(),
		ElemSize:    a.ElemSize(),
		HeaderBytes: a.HeaderBytes(),
		Storage:     a.Storage().String(),
		Flags:       a.Flags(),
	}
	for i := 0; i < a.Len() && i < 32; i++ {
		v, err := a.Get(i)
		if err != nil {
			d.Elements = append(d.Elements, "#undef")
			continue
		}
		d.Elements = append(d.Elements, s.format(v))
	}
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}
	cfg.Fdump(s.out, d)
	return nil
}

func (s *shell) cmdPin(pin bool, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pin NAME | unpin NAME")
	}
	a, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	if pin {
		s.heap.Pin(a.Ref())
		s.pinned[args[0]] = true
	} else {
		s.heap.Unpin(a.Ref())
		delete(s.pinned, args[0])
	}
	return nil
}

func (s *shell) cmdGC(args []string) error {
	names := args
	if len(names) == 0 {
		names = s.names()
	}
	keep := make(map[string]bool, len(names))
	roots := make([]runtime.Object, 0, len(names))
	for _, name := range names {
		a, err := s.lookup(name)
		if err != nil {
			return err
		}
		keep[name] = true
		roots = append(roots, a)
	}
	for name := range s.arrays {
		if !keep[name] && !s.pinned[name] {
			delete(s.arrays, name)
		}
	}
	cs := s.heap.Collect(roots...)
	fmt.Fprintf(s.out, "live %d freed %d\n", cs.Live, cs.Freed)
	return nil
}

func (s *shell) cmdStats() error {
	st := s.heap.Stats()
	fmt.Fprintf(s.out, "objects %d\n", st.Objects)
	fmt.Fprintf(s.out, "allocs inline %d pool %d malloc %d borrowed %d (%d bytes)\n",
		st.InlineAllocs, st.PoolAllocs, st.MallocAllocs, st.BorrowedViews, st.BytesAllocated)
	fmt.Fprintf(s.out, "reallocs %d unshares %d string reallocs %d\n", st.Reallocs, st.Unshares, st.StringReallocs)
	fmt.Fprintf(s.out, "collections %d freed %d remset queued %d malloc live %d races %d\n",
		st.Collections, st.Freed, st.RemsetQueued, st.MallocLive, st.Races)
	return nil
}

func (s *shell) lookup(name string) (*array.Array, error) {
	a, ok := s.arrays[name]
	if !ok {
		return nil, fmt.Errorf("no array named %q", name)
	}
	return a, nil
}

func (s *shell) names() []string {
	out := make([]string, 0, len(s.arrays))
	for name := range s.arrays {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// format renders a value, resolving string references to their text.
func (s *shell) format(v runtime.Value) string {
	if v.Type() == model.String {
		if str, ok := s.heap.Lookup(v.Ref()).(*runtime.String); ok {
			return strconv.Quote(str.String())
		}
	}
	return v.String()
}

// literal parses tok as a value suitable for storing into an array of
// element type t. Integer and float literals take the width of t, or of the
// first matching union arm.
func (s *shell) literal(t *model.Type, tok string) (runtime.Value, error) {
	switch {
	case tok == "nothing":
		return runtime.Nothing(), nil
	case tok == "true" || tok == "false":
		return runtime.Bool(tok == "true"), nil
	case strings.HasPrefix(tok, `"`):
		text, err := unquote(tok)
		if err != nil {
			return runtime.Value{}, err
		}
		str, err := s.heap.StringFromBytes([]byte(text))
		if err != nil {
			return runtime.Value{}, err
		}
		return runtime.StringValue(str), nil
	}
	if i, err := strconv.ParseInt(tok, 0, 64); err == nil {
		if it := pickArm(t, isIntType); it != nil {
			return intValue(it, i)
		}
		if ft := pickArm(t, isFloatType); ft != nil {
			return floatValue(ft, float64(i))
		}
		return runtime.Int64(i), nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		if ft := pickArm(t, isFloatType); ft != nil {
			return floatValue(ft, f)
		}
		return runtime.Float64(f), nil
	}
	return runtime.Value{}, fmt.Errorf("cannot parse %q", tok)
}

func isIntType(t *model.Type) bool {
	return t.Kind == model.KindPrimitive && t != model.Bool && t.Isa(model.Integer) && t.Size() <= 8
}

func isFloatType(t *model.Type) bool {
	return t == model.Float64 || t == model.Float32
}

func pickArm(t *model.Type, match func(*model.Type) bool) *model.Type {
	if t.IsUnion() {
		for _, arm := range t.Arms {
			if match(arm) {
				return arm
			}
		}
		return nil
	}
	if match(t) {
		return t
	}
	return nil
}

func intValue(t *model.Type, i int64) (runtime.Value, error) {
	b := make([]byte, t.Size())
	switch len(b) {
	case 1:
		b[0] = byte(i)
	case 2:
		binary.NativeEndian.PutUint16(b, uint16(i))
	case 4:
		binary.NativeEndian.PutUint32(b, uint32(i))
	case 8:
		binary.NativeEndian.PutUint64(b, uint64(i))
	}
	return runtime.Bits(t, b)
}

func floatValue(t *model.Type, f float64) (runtime.Value, error) {
	if t == model.Float32 {
		return runtime.Float32(float32(f)), nil
	}
	return runtime.Float64(f), nil
}

func ints(toks []string) ([]int, error) {
	out := make([]int, len(toks))
	for i, tok := range toks {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", tok)
		}
		out[i] = n
	}
	return out, nil
}

func unquote(tok string) (string, error) {
	if !strings.HasPrefix(tok, `"`) {
		return tok, nil
	}
	return strconv.Unquote(tok)
}

// splitArgs splits a command line on blanks, keeping double-quoted strings
// (with their quotes and escapes) as single arguments. Text after an
// unquoted '#' is ignored.
func splitArgs(line string) ([]string, error) {
	var (
		args []string
		cur  strings.Builder
		inQ  bool
		esc  bool
	)
	flush := func() {
		if cur.Len() > 0 {
			args = append(args, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case esc:
			cur.WriteRune(r)
			esc = false
		case inQ && r == '\\':
			cur.WriteRune(r)
			esc = true
		case r == '"':
			cur.WriteRune(r)
			inQ = !inQ
		case !inQ && r == '#':
			flush()
			return args, nil
		case !inQ && (r == ' ' || r == '\t'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQ {
		return nil, fmt.Errorf("unterminated string")
	}
	flush()
	return args, nil
}
