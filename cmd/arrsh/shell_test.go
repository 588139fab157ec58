package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sbl8/arraycore/compiler"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/runtime"
)

func newTestShell(t *testing.T, types *model.Registry) (*shell, *bytes.Buffer) {
	t.Helper()
	h, err := runtime.NewHeap(runtime.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if types == nil {
		types = model.NewRegistry()
	}
	var out bytes.Buffer
	return newShell(h, types, &out), &out
}

func TestSplitArgs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		want []string
	}{
		{"push a 1", []string{"push", "a", "1"}},
		{`fromstr s "hello world"`, []string{"fromstr", "s", `"hello world"`}},
		{`set s 0 "a \"q\""  # note`, []string{"set", "s", "0", `"a \"q\""`}},
		{"   ", nil},
		{"# only a comment", nil},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.line)
		if err != nil {
			t.Fatalf("%q: %v", tt.line, err)
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
	if _, err := splitArgs(`push a "open`); err == nil {
		t.Error("unterminated string accepted")
	}
}

func TestScript(t *testing.T) {
	t.Parallel()
	sh, out := newTestShell(t, nil)
	script := `
new a Int64 0
push a 10
push a 20
grow a beg 1
set a 0 5
get a 0
get a 2
del a at 1 1
get a 1
hint a 100
info a
stats
quit
get a 0
`
	var errs bytes.Buffer
	if status := runScript(sh, strings.NewReader(script), &errs); status != 0 {
		t.Fatalf("status %d: %s", status, errs.String())
	}
	lines := strings.Split(out.String(), "\n")
	var values []string
	for _, l := range lines {
		if l == "5" || l == "10" || l == "20" {
			values = append(values, l)
		}
	}
	if strings.Join(values, ",") != "5,20,20" {
		t.Errorf("values = %v\n%s", values, out.String())
	}
	a := sh.arrays["a"]
	if a.Len() != 2 || a.Capacity() < 100 {
		t.Errorf("a = %s", a)
	}
	if !strings.Contains(out.String(), "objects") {
		t.Error("stats output missing")
	}
}

func TestScriptReportsErrors(t *testing.T) {
	t.Parallel()
	sh, _ := newTestShell(t, nil)
	var errs bytes.Buffer
	status := runScript(sh, strings.NewReader("new a Int64 2\nget a 5\nbogus\nget b 0\n"), &errs)
	if status != 1 {
		t.Errorf("status = %d", status)
	}
	msg := errs.String()
	for _, want := range []string{"line 2:", "line 3: unknown command", "line 4: no array"} {
		if !strings.Contains(msg, want) {
			t.Errorf("errors %q missing %q", msg, want)
		}
	}
}

func TestStringsAndDump(t *testing.T) {
	t.Parallel()
	sh, out := newTestShell(t, nil)
	for _, line := range []string{
		`fromstr s "hello"`,
		`push s 33`,
		`str s`,
		`new v Any 0`,
		`push v "text"`,
		`push v 2.5`,
		`push v nothing`,
		`dump v`,
	} {
		if err := sh.exec(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	got := out.String()
	for _, want := range []string{`"hello!"`, `"\"text\""`, "2.5", "nothing", "PtrArray: (bool) true"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %s:\n%s", want, got)
		}
	}
}

func TestUserTypesAndGC(t *testing.T) {
	t.Parallel()
	types, err := compiler.ParseTypes([]byte("union Num Int32 Float64 Nothing\n"))
	if err != nil {
		t.Fatal(err)
	}
	sh, out := newTestShell(t, types)
	for _, line := range []string{
		"new u Num 0",
		"push u 7",
		"push u 1.5",
		"push u nothing",
		"get u 0",
		"new tmp Int64 4",
		"reshape m tmp 2 2",
		"gc u",
	} {
		if err := sh.exec(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	u := sh.arrays["u"]
	v, err := u.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if v.Type() != model.Int32 {
		t.Errorf("u[0] type = %s, want Int32", v.Type())
	}
	if v, _ := u.Get(2); !v.IsNothing() {
		t.Errorf("u[2] = %s", v)
	}
	if _, ok := sh.arrays["tmp"]; ok {
		t.Error("unrooted array kept after gc")
	}
	if !strings.Contains(out.String(), "freed") {
		t.Errorf("gc output missing: %s", out.String())
	}
	if err := sh.exec("quit"); err != errQuit {
		t.Errorf("quit returned %v", err)
	}
}

func TestPinSurvivesGC(t *testing.T) {
	t.Parallel()
	sh, _ := newTestShell(t, nil)
	for _, line := range []string{
		"new keep Int64 3",
		"set keep 1 42",
		"new pinned Int64 2",
		"set pinned 0 9",
		"new gone Int64 2",
		"pin pinned",
		"gc keep",
	} {
		if err := sh.exec(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	if _, ok := sh.arrays["gone"]; ok {
		t.Error("unrooted array kept after gc")
	}
	p, ok := sh.arrays["pinned"]
	if !ok {
		t.Fatal("pinned array dropped")
	}
	v, err := p.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := v.Int(); !ok || n != 9 {
		t.Errorf("pinned[0] = %v", v)
	}

	ref := p.Ref()
	if err := sh.exec("unpin pinned"); err != nil {
		t.Fatal(err)
	}
	if err := sh.exec("gc keep"); err != nil {
		t.Fatal(err)
	}
	if _, ok := sh.arrays["pinned"]; ok {
		t.Error("unpinned array kept after gc")
	}
	if sh.heap.Lookup(ref) != nil {
		t.Error("unpinned array still in the object table")
	}
}
