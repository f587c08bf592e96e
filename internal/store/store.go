package store

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"gridbook/internal/engine"
)

var (
	ErrWorkbookNotFound = errors.New("workbook not found")
	ErrWorkbookExists   = errors.New("workbook already exists")
)

// entry pairs a workbook with the mutex that serializes access to it.
// The engine itself performs no locking; every read or mutation of a
// workbook goes through With, which holds this mutex for the duration.
type entry struct {
	wb *engine.Workbook
	mu sync.Mutex
}

// persistedWorkbook is the on-disk shape, one file per workbook.
// History is in-memory only: a restart restores the latest cell
// snapshot but starts with a fresh event log.
type persistedWorkbook struct {
	ID     string        `json:"id"`
	Sheets engine.Import `json:"data"`
}

type WorkbookManager struct {
	dataDir   string
	workbooks map[string]*entry
	mu        sync.RWMutex
}

// Summary is the listing shape returned for each workbook.
type Summary struct {
	ID         string   `json:"id"`
	SheetNames []string `json:"sheet_names"`
	EventCount int      `json:"event_count"`
}

func NewWorkbookManager(dataDir string) *WorkbookManager {
	return &WorkbookManager{
		dataDir:   dataDir,
		workbooks: make(map[string]*entry),
	}
}

func (m *WorkbookManager) filePath(id string) string {
	return filepath.Join(m.dataDir, id+".json")
}

func (m *WorkbookManager) ensureDataDir() error {
	return os.MkdirAll(m.dataDir, 0755)
}

// Create registers a new workbook. An empty id gets a generated one.
func (m *WorkbookManager) Create(id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workbooks[id]; ok {
		return "", ErrWorkbookExists
	}
	e := &entry{wb: engine.New(id)}
	m.workbooks[id] = e
	m.saveLocked(e)
	return id, nil
}

// With runs fn against the workbook while holding its mutex, then
// persists the result. All reads and mutations go through here so
// concurrent requests against the same workbook are serialized.
func (m *WorkbookManager) With(id string, fn func(*engine.Workbook) error) error {
	m.mu.RLock()
	e, ok := m.workbooks[id]
	m.mu.RUnlock()
	if !ok {
		return ErrWorkbookNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.wb); err != nil {
		return err
	}
	m.saveLocked(e)
	return nil
}

// View is With without persistence, for read-only access.
func (m *WorkbookManager) View(id string, fn func(*engine.Workbook) error) error {
	m.mu.RLock()
	e, ok := m.workbooks[id]
	m.mu.RUnlock()
	if !ok {
		return ErrWorkbookNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.wb)
}

func (m *WorkbookManager) List() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.workbooks))
	for id, e := range m.workbooks {
		e.mu.Lock()
		out = append(out, Summary{
			ID:         id,
			SheetNames: e.wb.SheetNames(),
			EventCount: len(e.wb.Events),
		})
		e.mu.Unlock()
	}
	return out
}

func (m *WorkbookManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workbooks[id]; !ok {
		return ErrWorkbookNotFound
	}
	delete(m.workbooks, id)
	if err := os.Remove(m.filePath(id)); err != nil && !os.IsNotExist(err) {
		log.Printf("Error deleting workbook file %s: %v", m.filePath(id), err)
	}
	return nil
}

// saveLocked writes one workbook to disk. The caller must hold the
// workbook's mutex (or have exclusive access, as during Create).
func (m *WorkbookManager) saveLocked(e *entry) {
	if err := m.ensureDataDir(); err != nil {
		log.Printf("Error creating data directory: %v", err)
		return
	}
	filePath := m.filePath(e.wb.ID)
	file, err := os.Create(filePath)
	if err != nil {
		log.Printf("Error saving workbook %s: %v", e.wb.ID, err)
		return
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(persistedWorkbook{ID: e.wb.ID, Sheets: e.wb.Dump()}); err != nil {
		log.Printf("Error encoding workbook %s: %v", e.wb.ID, err)
	}
}

// Load reads every persisted workbook from the data directory.
func (m *WorkbookManager) Load() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.dataDir); os.IsNotExist(err) {
		log.Println("Data directory does not exist, starting fresh")
		return
	}

	files, err := filepath.Glob(filepath.Join(m.dataDir, "*.json"))
	if err != nil {
		log.Printf("Error listing data directory: %v", err)
		return
	}

	loadedCount := 0
	for _, filePath := range files {
		base := filepath.Base(filePath)
		if base == "users.json" {
			continue
		}
		file, err := os.Open(filePath)
		if err != nil {
			log.Printf("Error opening workbook file %s: %v", filePath, err)
			continue
		}
		var pw persistedWorkbook
		if err := json.NewDecoder(file).Decode(&pw); err != nil {
			log.Printf("Error decoding workbook file %s: %v", filePath, err)
			file.Close()
			continue
		}
		file.Close()
		if pw.ID == "" {
			pw.ID = strings.TrimSuffix(base, ".json")
		}
		wb := engine.New(pw.ID)
		wb.Load(pw.Sheets)
		m.workbooks[pw.ID] = &entry{wb: wb}
		loadedCount++
	}
	log.Printf("Loaded %d workbooks from disk", loadedCount)
}
