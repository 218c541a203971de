package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"multiverse/sim/internal/state"
)

// Frame is a single decoded tick payload from the binary frame log.
type Frame struct {
	Tick    uint64
	Payload []byte
}

// EventRecord wraps a simulation event with its capture timestamp.
type EventRecord struct {
	CapturedAt string       `json:"captured_at"`
	Event      *state.Event `json:"event"`
}

// Bundle rehydrates a replay directory for validation workflows.
type Bundle struct {
	Manifest Manifest
	Frames   []Frame
	Events   []EventRecord
}

// Open loads the manifest and both compressed artefact streams from dir.
func Open(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay directory must be provided")
	}

	//1.- Decode the manifest first so the artefact paths are authoritative.
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	frames, err := readFrames(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return nil, err
	}
	events, err := readEvents(filepath.Join(dir, manifest.EventsPath))
	if err != nil {
		return nil, err
	}

	return &Bundle{Manifest: manifest, Frames: frames, Events: events}, nil
}

// Replay invokes apply for each frame in tick order.
func (b *Bundle) Replay(apply func(Frame) error) error {
	if b == nil {
		return fmt.Errorf("bundle not initialised")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, frame := range b.Frames {
		//1.- Invoke the callback per frame to drive the validation sim.
		if err := apply(frame); err != nil {
			return err
		}
	}
	return nil
}

// readFrames decodes the zstd stream of length-prefixed frame records.
func readFrames(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	reader := bufio.NewReader(decoder)
	var frames []Frame
	header := make([]byte, 8+4)
	for {
		//1.- Read the fixed header; a clean EOF here terminates the stream.
		if _, err := io.ReadFull(reader, header); err != nil {
			if err == io.EOF {
				return frames, nil
			}
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		tick := binary.LittleEndian.Uint64(header[0:8])
		size := binary.LittleEndian.Uint32(header[8:12])
		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}
		frames = append(frames, Frame{Tick: tick, Payload: payload})
	}
}

// readEvents decodes the snappy-framed JSONL event log.
func readEvents(path string) ([]EventRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var records []EventRecord
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		//1.- Each line is a standalone JSON record so partial reads stay recoverable.
		var record EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse event line: %w", err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
