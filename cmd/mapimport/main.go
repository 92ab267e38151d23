// Command mapimport converts city maps between the GraphML interchange
// format and the sqlite map database the server loads at boot.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"freightcraft.ai/internal/sim/graph"
)

func main() {
	var (
		inPath  = flag.String("in", "", "input map (.graphml/.xml or sqlite db)")
		outPath = flag.String("out", "", "output map path (format picked by extension; empty prints a summary only)")
	)
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	g, err := graph.LoadMap(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load map:", err)
		os.Exit(1)
	}

	buildings := len(g.BuildingNodes())
	fmt.Printf("map %s: %d nodes (%d with buildings), %d edges\n",
		filepath.Base(*inPath), g.NodeCount(), buildings, g.EdgeCount())

	if *outPath == "" {
		return
	}

	switch filepath.Ext(*outPath) {
	case ".graphml", ".xml":
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create:", err)
			os.Exit(1)
		}
		if err := graph.WriteGraphML(f, g); err != nil {
			f.Close()
			fmt.Fprintln(os.Stderr, "write graphml:", err)
			os.Exit(1)
		}
		if err := f.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "close:", err)
			os.Exit(1)
		}
	default:
		if err := graph.SaveMapDB(*outPath, g); err != nil {
			fmt.Fprintln(os.Stderr, "write mapdb:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("wrote %s\n", *outPath)
}
