package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"multiverse/sim/internal/state"
)

var bundleNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const frameInterval = 200 * time.Millisecond

// frameBlob stages frame bytes before they are persisted to disk.
type frameBlob struct {
	Tick    uint64
	Payload []byte
}

// Writer streams session artefacts to disk using the high-frequency format.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	lastFlush   time.Time
}

// Manifest describes the replay bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int     `json:"version"`
	CreatedAt       string  `json:"created_at"`
	Mode            string  `json:"mode"`
	Seed            int64   `json:"seed"`
	TickHz          float64 `json:"tick_hz"`
	FrameIntervalMs int     `json:"frame_interval_ms"`
	EventsPath      string  `json:"events_path"`
	FramesPath      string  `json:"frames_path"`
}

// NewWriter prepares the replay directory and opens compressed sinks.
func NewWriter(root, mode string, seed int64, tickHz float64, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := bundleNameCleaner.ReplaceAllString(mode, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventsPath := filepath.Join(path, "events.jsonl.sz")
	framesPath := filepath.Join(path, "frames.bin.zst")
	manifestPath := filepath.Join(path, "manifest.json")

	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(framesPath)
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         1,
		CreatedAt:       created.Format(time.RFC3339Nano),
		Mode:            mode,
		Seed:            seed,
		TickHz:          tickHz,
		FrameIntervalMs: int(frameInterval / time.Millisecond),
		EventsPath:      "events.jsonl.sz",
		FramesPath:      "frames.bin.zst",
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	writer := &Writer{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
	}

	return writer, manifest, nil
}

// Directory exposes the directory backing the replay bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// AppendEvent writes a single JSON event line to the compressed event log.
func (w *Writer) AppendEvent(event *state.Event) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	if event == nil {
		return fmt.Errorf("event must be provided")
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Wrap the event with capture metadata so downstream JSONL parsers can stream it safely.
	clone := *event
	record := EventRecord{
		CapturedAt: captured.Format(time.RFC3339Nano),
		Event:      &clone,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := w.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendFrame buffers a binary frame until the 5 Hz cadence is reached.
func (w *Writer) AppendFrame(tick uint64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Stage the frame so cadence enforcement can persist batches together.
	w.pending = append(w.pending, frameBlob{Tick: tick, Payload: clone})
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= frameInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// Flush forces pending frames to be written regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Persist pending frames then refresh the cadence anchor to avoid bursts.
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close synchronously flushes all buffers and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Attempt every flush/close and surface the first failure for callers to inspect.
	var firstErr error
	if err := w.flushLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// flushLocked writes buffered frames to the zstd stream; callers must hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	//1.- Write length-prefixed frames so replayers can step efficiently.
	for _, frame := range w.pending {
		header := make([]byte, 8+4)
		binary.LittleEndian.PutUint64(header[0:8], frame.Tick)
		binary.LittleEndian.PutUint32(header[8:12], uint32(len(frame.Payload)))
		if _, err := w.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(frame.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
