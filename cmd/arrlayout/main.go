package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sbl8/arraycore/compiler"
	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/model"
)

func main() {
	all := flag.Bool("all", false, "Include builtin types")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <types file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	reg, err := compiler.CompileFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("compilation failed: %v", err)
	}
	types := reg.UserTypes()
	if *all {
		types = reg.Types()
	}
	printLayouts(os.Stdout, types)
}

func printLayouts(w io.Writer, types []*model.Type) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tKIND\tSIZE\tALIGN\tELSIZE\tSTORAGE\tPER LINE\tREFS")
	for _, t := range types {
		l := core.LayoutOf(t)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%d\t%v\n",
			t, t.Kind, t.Size(), t.Align(), l.ElemSize, storageOf(l), l.OptimalBatchSize(), t.Pointers())
	}
	tw.Flush()

	for _, t := range types {
		if len(t.Fields) == 0 && len(t.Arms) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s", t)
		if t.Super != nil && t.Super != model.Any {
			fmt.Fprintf(w, " <: %s", t.Super)
		}
		fmt.Fprintln(w)
		for _, f := range t.Fields {
			mode := "inline"
			if f.IsRef {
				mode = "ref"
			}
			fmt.Fprintf(w, "  +%-4d %-12s %-12s %s\n", f.Offset, f.Name, f.Type, mode)
		}
		for i, a := range t.Arms {
			fmt.Fprintf(w, "  [%d] %s\n", i, a)
		}
	}
}

func storageOf(l core.Layout) string {
	var parts []string
	switch {
	case l.PtrArray:
		parts = append(parts, "boxed")
	case l.HasPtr:
		parts = append(parts, "inline+refs")
	default:
		parts = append(parts, "inline")
	}
	if l.IsUnion {
		parts = append(parts, "selector")
	}
	if l.HasImplicitByte() {
		parts = append(parts, "nul")
	}
	if l.ZeroInit {
		parts = append(parts, "zeroed")
	}
	return strings.Join(parts, ",")
}
