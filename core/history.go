package core

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// JobRecord is the outcome of the most recent runs of a scheduled job.
type JobRecord struct {
	LastRun   time.Time `json:"last_run"`
	LastOK    time.Time `json:"last_ok,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
}

type HistoryManager struct {
	// job name -> record
	Jobs map[string]*JobRecord `json:"jobs"`
	Path string                `json:"-"`
	mu   sync.RWMutex
}

func NewHistoryManager(path string) *HistoryManager {
	return &HistoryManager{
		Jobs: make(map[string]*JobRecord),
		Path: path,
	}
}

func (hm *HistoryManager) Load() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	data, err := os.ReadFile(hm.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	jobs := make(map[string]*JobRecord)
	if err := json.Unmarshal(data, &jobs); err != nil {
		return err
	}
	hm.Jobs = jobs
	return nil
}

func (hm *HistoryManager) Save() error {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	data, err := json.MarshalIndent(hm.Jobs, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(hm.Path, data, 0644)
}

// Record stores the result of one run of job.
func (hm *HistoryManager) Record(job string, at time.Time, runErr error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	rec, ok := hm.Jobs[job]
	if !ok {
		rec = &JobRecord{}
		hm.Jobs[job] = rec
	}
	rec.LastRun = at
	rec.Runs++
	if runErr != nil {
		rec.Failures++
		rec.LastError = runErr.Error()
		return
	}
	rec.LastOK = at
	rec.LastError = ""
}

// Get returns a copy of the record for job.
func (hm *HistoryManager) Get(job string) (JobRecord, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	rec, ok := hm.Jobs[job]
	if !ok {
		return JobRecord{}, false
	}
	return *rec, true
}
