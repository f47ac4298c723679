package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/warp/shift-scheduler/calendar"
)

// OverrideSet records days on which the user confirmed scheduling a
// resource despite an availability conflict. It lives for one modal
// session and is only ever cleared as a whole.
type OverrideSet struct {
	mu    sync.RWMutex
	dates map[string]map[string]struct{}
}

func NewOverrideSet() *OverrideSet {
	return &OverrideSet{dates: make(map[string]map[string]struct{})}
}

// Add records an override. It returns false when day is invalid.
func (o *OverrideSet) Add(resourceID string, day time.Time) bool {
	key, err := calendar.FormatDate(day)
	if err != nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	set, ok := o.dates[resourceID]
	if !ok {
		set = make(map[string]struct{})
		o.dates[resourceID] = set
	}
	set[key] = struct{}{}
	return true
}

// Remove drops a single override, deleting the resource entry once empty.
func (o *OverrideSet) Remove(resourceID string, day time.Time) {
	key, err := calendar.FormatDate(day)
	if err != nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	set, ok := o.dates[resourceID]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(o.dates, resourceID)
	}
}

func (o *OverrideSet) IsOverridden(resourceID string, day time.Time) bool {
	key, err := calendar.FormatDate(day)
	if err != nil {
		return false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.dates[resourceID][key]
	return ok
}

// Clear drops every override.
func (o *OverrideSet) Clear() {
	o.mu.Lock()
	o.dates = make(map[string]map[string]struct{})
	o.mu.Unlock()
}

// Len counts overridden (resource, day) pairs.
func (o *OverrideSet) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, set := range o.dates {
		n += len(set)
	}
	return n
}

// Override is one overridden (resource, day) pair.
type Override struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
}

// Entries lists the overrides ordered by resource, then day.
func (o *OverrideSet) Entries() []Override {
	o.mu.RLock()
	out := make([]Override, 0, len(o.dates))
	for resource, set := range o.dates {
		for d := range set {
			out = append(out, Override{ResourceID: resource, Date: d})
		}
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceID != out[j].ResourceID {
			return out[i].ResourceID < out[j].ResourceID
		}
		return out[i].Date < out[j].Date
	})
	return out
}
