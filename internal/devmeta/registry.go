package devmeta

import (
	"sync"
)

// Registry manages device metadata for one capture.
type Registry struct {
	mu       sync.RWMutex
	metadata map[uint64]*DeviceMetadata // device handle -> metadata
	issues   map[uint64][]string        // device handle -> warnings
	order    []uint64                   // first-seen order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metadata: make(map[uint64]*DeviceMetadata),
		issues:   make(map[uint64][]string),
	}
}

// Get retrieves metadata for a device handle (query).
// Returns nil if the handle was never observed.
func (r *Registry) Get(device uint64) *DeviceMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metadata[device]
}

// Identity returns the identity string for a device handle (query).
func (r *Registry) Identity(device uint64) string {
	return r.Get(device).Identity()
}

// GetIssues retrieves the capture issues for a device handle (query).
func (r *Registry) GetIssues(device uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.issues[device]
}

// Devices returns all observed handles in first-seen order (query).
func (r *Registry) Devices() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint64, len(r.order))
	copy(out, r.order)
	return out
}

// Observe records a device handle and, if not yet known, its identity
// (command). The first nonzero vendor id seen for a handle is kept.
// Handle 0 is never recorded.
func (r *Registry) Observe(device uint64, vendorID, productID uint16) {
	if device == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.metadata[device]
	if !ok {
		m = &DeviceMetadata{Handle: device}
		r.metadata[device] = m
		r.order = append(r.order, device)
	}
	if m.VendorID == 0 && vendorID != 0 {
		m.VendorID = vendorID
		m.ProductID = productID
	}
}

// AddIssue adds a capture issue for a device handle (command).
func (r *Registry) AddIssue(device uint64, issue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues[device] = append(r.issues[device], issue)
}

// AddIssues adds multiple capture issues for a device handle (command).
func (r *Registry) AddIssues(device uint64, issues []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues[device] = append(r.issues[device], issues...)
}
