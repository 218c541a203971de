package main

import (
	"flag"
	"fmt"
	"os"

	"multiverse/sim/tools/replaydump"
)

func main() {
	root := flag.String("dir", ".", "directory containing replay bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	summaries, err := replaydump.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		rendered, err := replaydump.RenderJSON(summaries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(rendered)
		return
	}

	for _, summary := range summaries {
		fmt.Printf("%s (%s, seed %d)\n", summary.Path, summary.Mode, summary.Seed)
		fmt.Printf("  created: %s\n", summary.CreatedAt)
		fmt.Printf("  frames: %d (ticks %d..%d) at %.0f Hz\n", summary.FrameCount, summary.FirstTick, summary.LastTick, summary.TickHz)
		fmt.Printf("  events: %d\n", summary.EventCount)
	}
}
