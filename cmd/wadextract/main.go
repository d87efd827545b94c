// main.go - WAD lump lister and extractor

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/musdoom/musdoom"
)

func main() {
	var outPath string

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&outPath, "o", "", "output file (default: LUMPNAME.lmp)")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: wadextract [-o output] file.wad [lumpname]")
		fmt.Println("Lists the lumps in a WAD, or extracts one by name.")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if flagSet.NArg() < 1 {
		flagSet.Usage()
		os.Exit(1)
	}

	raw, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wadextract: %v\n", err)
		os.Exit(1)
	}
	wad, err := musdoom.ParseWAD(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wadextract: %v\n", err)
		os.Exit(1)
	}

	if flagSet.NArg() < 2 {
		fmt.Printf("WAD type: %s\n", wad.Type)
		fmt.Printf("Lumps: %d\n\n", len(wad.Lumps))
		for i, lump := range wad.Lumps {
			fmt.Printf("  %4d: %-8s  size: %d\n", i, lump.Name, len(lump.Data))
		}
		return
	}

	name := flagSet.Arg(1)
	data, ok := wad.Lump(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "wadextract: lump %q not found\n", name)
		os.Exit(1)
	}

	if outPath == "" {
		outPath = name + ".lmp"
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "wadextract: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Extracted %s (%d bytes) to %s\n", name, len(data), outPath)
}
