package datadict

import (
	"fmt"
	"sort"
)

// ErrOwnedByOtherStage is returned when a stage tries to mutate an entry
// that another stage already mutated.
type ErrOwnedByOtherStage struct {
	Dataset string
	Owner   string
	Stage   string
}

func (e *ErrOwnedByOtherStage) Error() string {
	return fmt.Sprintf("dataset %s was already modified by stage %s; %s may not modify it", e.Dataset, e.Owner, e.Stage)
}

// Dictionary maps dataset type labels to their entries. It is shared by
// reference across all stages of a job and is not safe for concurrent use.
type Dictionary struct {
	entries map[string]*FileArg
}

// New creates an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{entries: make(map[string]*FileArg)}
}

// Put adds or replaces the entry for its dataset.
func (d *Dictionary) Put(f *FileArg) {
	d.entries[f.Dataset] = f
}

// Get returns the entry for dataset without claiming it.
func (d *Dictionary) Get(dataset string) (*FileArg, bool) {
	f, ok := d.entries[dataset]
	return f, ok
}

// Has reports whether dataset has an entry.
func (d *Dictionary) Has(dataset string) bool {
	_, ok := d.entries[dataset]
	return ok
}

// Delete removes the entry for dataset.
func (d *Dictionary) Delete(dataset string) {
	delete(d.entries, dataset)
}

// Datasets returns all dataset labels in sorted order.
func (d *Dictionary) Datasets() []string {
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ByIO returns the labels whose entries have the given direction.
func (d *Dictionary) ByIO(io IO) []string {
	var keys []string
	for _, k := range d.Datasets() {
		if d.entries[k].IO == io {
			keys = append(keys, k)
		}
	}
	return keys
}

// Checkout returns the entry for dataset for mutation by stage. The first
// stage to check an entry out becomes its owner; any other stage is refused.
// The same stage may check an entry out any number of times.
func (d *Dictionary) Checkout(dataset, stage string) (*FileArg, error) {
	f, ok := d.entries[dataset]
	if !ok {
		return nil, fmt.Errorf("dataset %s is not in the data dictionary", dataset)
	}
	if f.mutatedBy != "" && f.mutatedBy != stage {
		return nil, &ErrOwnedByOtherStage{Dataset: dataset, Owner: f.mutatedBy, Stage: stage}
	}
	f.mutatedBy = stage
	return f, nil
}

// Owner returns the stage that mutated dataset, if any.
func (d *Dictionary) Owner(dataset string) string {
	if f, ok := d.entries[dataset]; ok {
		return f.mutatedBy
	}
	return ""
}

// Subset copies the named entries into a new Dictionary, for auxiliary
// executors that must not disturb the parent's bookkeeping.
func (d *Dictionary) Subset(datasets ...string) *Dictionary {
	out := New()
	for _, name := range datasets {
		if f, ok := d.entries[name]; ok {
			out.Put(f.Clone())
		}
	}
	return out
}
