// Package replaydump inspects replay bundles produced by the universe host.
package replaydump

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"multiverse/sim/internal/replay"
)

// Summary condenses one bundle for operator inspection.
type Summary struct {
	Path       string  `json:"path"`
	Mode       string  `json:"mode"`
	Seed       int64   `json:"seed"`
	TickHz     float64 `json:"tick_hz"`
	CreatedAt  string  `json:"created_at"`
	FrameCount int     `json:"frame_count"`
	EventCount int     `json:"event_count"`
	FirstTick  uint64  `json:"first_tick"`
	LastTick   uint64  `json:"last_tick"`
}

// Summarize opens the bundle at path and reports its contents.
func Summarize(path string) (Summary, error) {
	if strings.TrimSpace(path) == "" {
		return Summary{}, fmt.Errorf("path is required")
	}
	bundle, err := replay.Open(path)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Path:       path,
		Mode:       bundle.Manifest.Mode,
		Seed:       bundle.Manifest.Seed,
		TickHz:     bundle.Manifest.TickHz,
		CreatedAt:  bundle.Manifest.CreatedAt,
		FrameCount: len(bundle.Frames),
		EventCount: len(bundle.Events),
	}
	//1.- Frames are written in tick order so the span falls out of the ends.
	if len(bundle.Frames) > 0 {
		summary.FirstTick = bundle.Frames[0].Tick
		summary.LastTick = bundle.Frames[len(bundle.Frames)-1].Tick
	}
	return summary, nil
}

// List walks the directory tree and summarises every bundle beneath root.
func List(root string) ([]Summary, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var summaries []Summary
	//1.- Manifests mark bundle roots, so walk for those instead of guessing names.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "manifest.json" {
			return nil
		}
		summary, err := Summarize(filepath.Dir(path))
		if err != nil {
			return fmt.Errorf("summarise %s: %w", path, err)
		}
		summaries = append(summaries, summary)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt < summaries[j].CreatedAt
	})
	return summaries, nil
}

// RenderJSON pretty-prints summaries for CLI consumption.
func RenderJSON(summaries []Summary) (string, error) {
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
