// Package crosswalk defines the mapping store that resolves original DICOM
// identifiers to their de-identified substitutes. The production store lives
// behind an external service; this package carries the contract and an
// in-memory implementation.
package crosswalk

import "sync"

// Identifier types understood by a crosswalk store.
const (
	IDTypeSOPUID    = "SOP_UID"
	IDTypeStudyUID  = "STUDY_UID"
	IDTypeSeriesUID = "SERIES_UID"
	IDTypePatientID = "PATIENT_ID"
)

// Store resolves (broker, original identifier, identifier type) to the
// de-identified value. Lookup returns "" when no mapping exists.
type Store interface {
	Lookup(brokerName, originalID, idType string) string
}

type key struct {
	broker, id, idType string
}

// MemoryStore is a concurrency-safe in-memory Store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[key]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[key]string)}
}

// Put records a mapping.
func (s *MemoryStore) Put(brokerName, originalID, idType, mapped string) {
	s.mu.Lock()
	s.m[key{brokerName, originalID, idType}] = mapped
	s.mu.Unlock()
}

func (s *MemoryStore) Lookup(brokerName, originalID, idType string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[key{brokerName, originalID, idType}]
}
