// Package datadict tracks the physical files behind every logical dataset of
// a job. Entries persist for the whole job and are the authoritative record
// of which files exist for each dataset.
package datadict

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
)

// IO is the direction of a dataset relative to the job.
type IO string

const (
	IOInput     IO = "input"
	IOOutput    IO = "output"
	IOTemporary IO = "temporary"
)

// Format identifies the file family of a dataset, which decides how its
// files can be merged.
type Format string

const (
	FormatPool       Format = "pool"
	FormatNtuple     Format = "ntup"
	FormatHist       Format = "hist"
	FormatByteStream Format = "bs"
	FormatCatalog    Format = "tag"
	FormatArchive    Format = "archive"
	FormatOther      Format = "other"
)

// Metadata keys understood by FileArg.
const (
	MetaFileSize = "file_size"
	MetaEvents   = "nentries"
)

// MergeRequest describes one merge of several physical files into one.
type MergeRequest struct {
	Dataset string
	Format  Format
	Output  string
	Inputs  []string
	Counter int
}

// Merger is the self-merge capability of a dataset. Implementations run the
// byte-level merge; this package only decides what gets merged.
type Merger interface {
	Merge(ctx context.Context, req MergeRequest) error
}

// FileArg is the data dictionary entry backing one dataset.
type FileArg struct {
	Dataset         string
	Format          Format
	IO              IO
	Values          []string
	MultipleOK      bool
	MergeTargetSize int64

	originalName string
	metadata     map[string]map[string]any
	merger       Merger
	mutatedBy    string
}

// NewFileArg creates an entry for dataset with the given files.
func NewFileArg(dataset string, io IO, format Format, values ...string) *FileArg {
	return &FileArg{
		Dataset:  dataset,
		Format:   format,
		IO:       io,
		Values:   append([]string(nil), values...),
		metadata: make(map[string]map[string]any),
	}
}

// OriginalName is the canonical name recorded before the first rename.
func (f *FileArg) OriginalName() string {
	return f.originalName
}

// RememberOriginal records the current first value as the original name.
// It only acts once; later calls never overwrite it. It returns the
// original name in effect.
func (f *FileArg) RememberOriginal() string {
	if f.originalName == "" && len(f.Values) > 0 {
		f.originalName = f.Values[0]
	}
	return f.originalName
}

// SetMerger attaches the self-merge capability.
func (f *FileArg) SetMerger(m Merger) {
	f.merger = m
}

// Merger returns the self-merge capability, or nil when the dataset cannot
// merge its own files.
func (f *FileArg) Merger() Merger {
	return f.merger
}

// CanSelfMerge reports whether a merge capability is attached.
func (f *FileArg) CanSelfMerge() bool {
	return f.merger != nil
}

// SetMetadata records a metadata value for one physical file.
func (f *FileArg) SetMetadata(file, key string, value any) {
	if f.metadata == nil {
		f.metadata = make(map[string]map[string]any)
	}
	entry, ok := f.metadata[file]
	if !ok {
		entry = make(map[string]any)
		f.metadata[file] = entry
	}
	entry[key] = value
}

// Metadata returns a recorded metadata value. File sizes that were never
// recorded are read from disk.
func (f *FileArg) Metadata(file, key string) (any, bool) {
	if entry, ok := f.metadata[file]; ok {
		if v, found := entry[key]; found {
			return v, true
		}
	}
	if key == MetaFileSize {
		info, err := os.Stat(file)
		if err != nil {
			return nil, false
		}
		return info.Size(), true
	}
	return nil, false
}

// Size resolves the byte size of file. Any value that is not an integer is
// an error.
func (f *FileArg) Size(file string) (int64, error) {
	v, ok := f.Metadata(file, MetaFileSize)
	if !ok {
		return 0, fmt.Errorf("no size metadata for %s", file)
	}
	return strictInt(v)
}

// Events resolves the event count of file.
func (f *FileArg) Events(file string) (int64, error) {
	v, ok := f.Metadata(file, MetaEvents)
	if !ok {
		return 0, fmt.Errorf("no event count for %s", file)
	}
	return strictInt(v)
}

// TotalEvents sums the event counts of every file. ok is false when any file
// lacks a usable count.
func (f *FileArg) TotalEvents() (int64, bool) {
	var total int64
	for _, file := range f.Values {
		n, err := f.Events(file)
		if err != nil {
			return 0, false
		}
		total += n
	}
	return total, len(f.Values) > 0
}

// ReplaceValues swaps the file list, dropping metadata of files no longer listed.
func (f *FileArg) ReplaceValues(values []string) {
	keep := make(map[string]struct{}, len(values))
	for _, v := range values {
		keep[v] = struct{}{}
	}
	for file := range f.metadata {
		if _, ok := keep[file]; !ok {
			delete(f.metadata, file)
		}
	}
	f.Values = append([]string(nil), values...)
}

// ReplaceMerged substitutes a merged output for its inputs, keeping the
// position of the first input.
func (f *FileArg) ReplaceMerged(output string, inputs []string) {
	drop := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		drop[in] = struct{}{}
	}
	next := make([]string, 0, len(f.Values))
	placed := false
	for _, v := range f.Values {
		if _, ok := drop[v]; ok {
			if !placed {
				next = append(next, output)
				placed = true
			}
			continue
		}
		next = append(next, v)
	}
	if !placed {
		next = append(next, output)
	}
	f.ReplaceValues(next)
}

// Clone copies the entry without its stage ownership.
func (f *FileArg) Clone() *FileArg {
	clone := &FileArg{
		Dataset:         f.Dataset,
		Format:          f.Format,
		IO:              f.IO,
		Values:          append([]string(nil), f.Values...),
		MultipleOK:      f.MultipleOK,
		MergeTargetSize: f.MergeTargetSize,
		originalName:    f.originalName,
		merger:          f.merger,
		metadata:        make(map[string]map[string]any, len(f.metadata)),
	}
	for file, entry := range f.metadata {
		copied := make(map[string]any, len(entry))
		for k, v := range entry {
			copied[k] = v
		}
		clone.metadata[file] = copied
	}
	return clone
}

func (f *FileArg) String() string {
	return fmt.Sprintf("%s[%s]", f.Dataset, strings.Join(f.Values, ","))
}

func strictInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		return unsignedInt(uint64(t))
	case uint64:
		return unsignedInt(t)
	default:
		return 0, fmt.Errorf("expected integer metadata, found %T", v)
	}
}

func unsignedInt(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("integer metadata %d overflows int64", v)
	}
	return int64(v), nil
}
