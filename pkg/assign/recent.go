package assign

import (
	"sync"
	"time"

	"github.com/johnlam90/vpc-subnet-assigner/pkg/netif"
)

// Assignment is one interface the orchestrator created
type Assignment struct {
	InstanceID string
	VPCID      string
	SubnetID   string
	// ConfigID is the profile the interface was appended to; empty for
	// modern interfaces
	ConfigID   string
	Generation netif.Generation
	Interface  netif.NetworkInterface
	AssignedAt time.Time
}

// RecentlyAssigned is an in-memory, insertion-ordered record of successful
// assignments with lookups by instance and subnet. It is not persisted.
type RecentlyAssigned struct {
	assignments []Assignment
	byInstance  map[string][]int // instanceID -> indexes into assignments
	bySubnet    map[string][]int // subnetID -> indexes into assignments
	mutex       sync.RWMutex
}

// NewRecentlyAssigned creates an empty record
func NewRecentlyAssigned() *RecentlyAssigned {
	return &RecentlyAssigned{
		byInstance: make(map[string][]int),
		bySubnet:   make(map[string][]int),
	}
}

// Add appends an assignment
func (r *RecentlyAssigned) Add(a Assignment) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	idx := len(r.assignments)
	r.assignments = append(r.assignments, a)
	r.byInstance[a.InstanceID] = append(r.byInstance[a.InstanceID], idx)
	r.bySubnet[a.SubnetID] = append(r.bySubnet[a.SubnetID], idx)
}

// List returns all assignments in the order they succeeded
func (r *RecentlyAssigned) List() []Assignment {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]Assignment(nil), r.assignments...)
}

// ByInstance returns the assignments of one instance
func (r *RecentlyAssigned) ByInstance(instanceID string) []Assignment {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.collect(r.byInstance[instanceID])
}

// BySubnet returns the assignments made to one subnet
func (r *RecentlyAssigned) BySubnet(subnetID string) []Assignment {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.collect(r.bySubnet[subnetID])
}

// InstanceIDs returns the distinct assigned instance IDs in first-seen order
func (r *RecentlyAssigned) InstanceIDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]string, 0, len(r.byInstance))
	seen := make(map[string]bool, len(r.byInstance))
	for _, a := range r.assignments {
		if !seen[a.InstanceID] {
			seen[a.InstanceID] = true
			ids = append(ids, a.InstanceID)
		}
	}
	return ids
}

// Len returns the number of assignments
func (r *RecentlyAssigned) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.assignments)
}

// Clear drops every assignment
func (r *RecentlyAssigned) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.assignments = nil
	r.byInstance = make(map[string][]int)
	r.bySubnet = make(map[string][]int)
}

func (r *RecentlyAssigned) collect(indexes []int) []Assignment {
	out := make([]Assignment, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, r.assignments[idx])
	}
	return out
}
