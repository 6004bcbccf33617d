package upload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/CalistaF0X/basetable/pkg/dom"
)

// RecordState is the per-file transport lifecycle.
type RecordState string

const (
	StateIdle      RecordState = "idle"
	StateUploading RecordState = "uploading"
	StateDone      RecordState = "done"
	StateError     RecordState = "error"
)

// Record tracks one file within an image field.
type Record struct {
	ID         string
	Name       string
	State      RecordState
	ServerPath string
	// Preview is a locally renderable source: a data URL for binary files,
	// the URL itself for link drops.
	Preview string
	// Err holds the last transport failure while State is StateError.
	Err error

	file    dom.File
	cancel  context.CancelFunc
	removed bool
}

// Manager owns the ordered record list for one image field. Uploads for
// different records run independently and may overlap; the committed value
// is recomputed from the done records after every transition.
type Manager struct {
	mu        sync.Mutex
	records   []*Record
	transport Transport
	category  string
	onChange  func(serialized string)
	logger    *slog.Logger

	// emitMu serialises onChange deliveries. The committed value is
	// recomputed inside the same critical section that invokes the
	// callback, so the last delivery always carries the final state even
	// when transitions on different records race.
	emitMu sync.Mutex
}

// NewManager constructs a record manager. onChange receives the serialised
// committed value (JSON array of done server paths, in record order) after
// every state transition. Deliveries are serialised: the value passed to
// the last call always reflects the latest transition.
func NewManager(transport Transport, category string, onChange func(string), logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		transport: transport,
		category:  category,
		onChange:  onChange,
		logger:    logger,
	}
}

// Add registers a new file and starts its upload. Files that carry only a
// URL (dropped or pasted links, no binary payload) enter done directly with
// the URL as their stored path, skipping the transport.
func (m *Manager) Add(file dom.File) *Record {
	rec := &Record{
		ID:   uuid.NewString(),
		Name: file.Name,
		file: file,
	}
	if len(file.Content) == 0 && file.URL != "" {
		rec.State = StateDone
		rec.ServerPath = file.URL
		rec.Preview = file.URL
		m.append(rec)
		return rec
	}

	rec.State = StateIdle
	rec.Preview = dataURL(file.Content)
	m.append(rec)
	m.start(rec)
	return rec
}

func (m *Manager) append(rec *Record) {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	m.emit()
}

// start launches the transport for rec. Caller must not hold the lock.
func (m *Manager) start(rec *Record) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if rec.removed || rec.State == StateUploading {
		m.mu.Unlock()
		cancel()
		return
	}
	rec.State = StateUploading
	rec.cancel = cancel
	m.mu.Unlock()
	m.emit()

	go func() {
		path, err := m.transport.Upload(ctx, rec.file, m.category)
		cancel()

		m.mu.Lock()
		// A record that was cancelled or removed while the transport ran
		// already settled; the late completion is a no-op.
		if rec.removed || rec.State != StateUploading {
			m.mu.Unlock()
			return
		}
		if err != nil {
			rec.State = StateError
			rec.Err = err
			m.logger.Warn("upload failed", "record", rec.ID, "file", rec.Name, "error", err)
		} else {
			rec.State = StateDone
			rec.ServerPath = path
			rec.Err = nil
		}
		m.mu.Unlock()
		m.emit()
	}()
}

// Cancel aborts an in-flight upload. The record transitions to error and
// stays retryable; it is not removed.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	rec := m.findLocked(id)
	if rec == nil || rec.State != StateUploading {
		m.mu.Unlock()
		return
	}
	rec.State = StateError
	rec.Err = context.Canceled
	cancel := rec.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.emit()
}

// Retry restarts the transport for a failed record, reusing its id.
func (m *Manager) Retry(id string) {
	m.mu.Lock()
	rec := m.findLocked(id)
	if rec == nil || rec.State != StateError {
		m.mu.Unlock()
		return
	}
	rec.State = StateIdle
	rec.Err = nil
	m.mu.Unlock()
	m.start(rec)
}

// Remove aborts any in-flight transport for the record, then deletes it.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	rec := m.findLocked(id)
	if rec == nil {
		m.mu.Unlock()
		return
	}
	rec.removed = true
	cancel := rec.cancel
	for i, candidate := range m.records {
		if candidate == rec {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.emit()
}

// Promote moves the record to the front of the list (first image is the
// cover image convention).
func (m *Manager) Promote(id string) {
	m.mu.Lock()
	rec := m.findLocked(id)
	if rec == nil {
		m.mu.Unlock()
		return
	}
	for i, candidate := range m.records {
		if candidate == rec {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	m.records = append([]*Record{rec}, m.records...)
	m.mu.Unlock()
	m.emit()
}

// CancelAll aborts every in-flight transport. Used on field teardown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	var cancels []context.CancelFunc
	for _, rec := range m.records {
		if rec.State == StateUploading {
			rec.State = StateError
			rec.Err = context.Canceled
			if rec.cancel != nil {
				cancels = append(cancels, rec.cancel)
			}
		}
	}
	m.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Records returns a snapshot of the current record list in order.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	for i, rec := range m.records {
		out[i] = *rec
	}
	return out
}

// Serialized returns the committed field value: the JSON array of done
// records' server paths in their current order.
func (m *Manager) Serialized() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serializedLocked()
}

func (m *Manager) serializedLocked() string {
	paths := make([]string, 0, len(m.records))
	for _, rec := range m.records {
		if rec.State == StateDone {
			paths = append(paths, rec.ServerPath)
		}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// emit delivers the committed value to onChange. Recomputing the value
// under emitMu means a delivery can never carry a snapshot older than one
// already delivered.
func (m *Manager) emit() {
	if m.onChange == nil {
		return
	}
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.onChange(m.Serialized())
}

func (m *Manager) findLocked(id string) *Record {
	for _, rec := range m.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func dataURL(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	return "data:;base64," + base64.StdEncoding.EncodeToString(content)
}
