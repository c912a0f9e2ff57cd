// Package merge reduces many small physical files of a dataset to a few
// files close to a target size. The byte-level merge itself is delegated to
// the dataset's merge capability.
package merge

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	"github.com/alexisbeaulieu97/stagehand/internal/logger"
)

// Group is one set of files destined for a single merged output.
type Group struct {
	Files []string
	Size  int64
}

// Record describes a merge that was actually performed.
type Record struct {
	Dataset string   `json:"dataset"`
	Output  string   `json:"output"`
	Inputs  []string `json:"inputs"`
	Counter int      `json:"counter"`
}

// Options tunes Smart. Zero values select the defaults.
type Options struct {
	Logger *logger.Logger
	// Exists reports whether a candidate output name is already taken.
	Exists func(name string) bool
	// Original overrides the base name outputs are derived from.
	Original string
}

// Plan partitions files, in order, into groups whose sizes approximate
// target. A negative target puts everything into one group. A file is added
// to the current group when the group is empty or when adding it brings the
// group closer to the target than leaving it out.
func Plan(files []string, target int64, size func(string) (int64, error)) ([]Group, error) {
	var groups []Group
	current := Group{}

	for _, file := range files {
		n, err := size(file)
		if err != nil {
			return nil, fmt.Errorf("size of %s: %w", file, err)
		}

		if len(current.Files) == 0 {
			current.Files = append(current.Files, file)
			current.Size += n
			continue
		}

		closer := math.Abs(float64(current.Size+n-target)) < math.Abs(float64(current.Size-target))
		if target < 0 || closer {
			current.Files = append(current.Files, file)
			current.Size += n
			continue
		}

		groups = append(groups, current)
		current = Group{Files: []string{file}, Size: n}
	}

	if len(current.Files) > 0 {
		groups = append(groups, current)
	}
	return groups, nil
}

// Names assigns an output name to every group. A single group takes the
// original name; otherwise names are original_NNNN with a zero-based counter,
// skipping names that already exist.
func Names(groups []Group, original string, exists func(string) bool) []string {
	if len(groups) == 1 {
		return []string{original}
	}
	names := make([]string, 0, len(groups))
	counter := 0
	for range groups {
		name := fmt.Sprintf("%s_%04d", original, counter)
		for exists != nil && exists(name) {
			counter++
			name = fmt.Sprintf("%s_%04d", original, counter)
		}
		names = append(names, name)
		counter++
	}
	return names
}

// Smart merges the files of f towards f.MergeTargetSize. It returns the
// merges performed. A target of 0, a dataset without a merge capability, or
// a file whose size is not an integer means no merge at all.
func Smart(ctx context.Context, f *datadict.FileArg, opts Options) ([]Record, error) {
	log := opts.Logger
	exists := opts.Exists
	if exists == nil {
		exists = fileExists
	}

	if f.MergeTargetSize == 0 {
		log.Infof("files in %s will not be merged as target size is 0", f.Dataset)
		return nil, nil
	}
	if !f.CanSelfMerge() {
		log.Infof("files in %s cannot be merged: no merge capability", f.Dataset)
		return nil, nil
	}

	groups, err := Plan(f.Values, f.MergeTargetSize, f.Size)
	if err != nil {
		log.Warnf("file size metadata for %s is not usable, aborting merge: %v", f.Dataset, err)
		return nil, nil
	}
	log.Debugf("merge plan for %s: %d groups", f.Dataset, len(groups))

	original := opts.Original
	if original == "" {
		original = f.OriginalName()
	}
	if original == "" {
		original = f.RememberOriginal()
	}
	names := Names(groups, original, exists)

	var records []Record
	for i, group := range groups {
		if len(group.Files) <= 1 {
			log.Debugf("skip merging single file %v", group.Files)
			continue
		}
		if err := ctx.Err(); err != nil {
			return records, err
		}
		log.Infof("merging %d files into %s", len(group.Files), names[i])
		req := datadict.MergeRequest{
			Dataset: f.Dataset,
			Format:  f.Format,
			Output:  names[i],
			Inputs:  append([]string(nil), group.Files...),
			Counter: i,
		}
		if err := f.Merger().Merge(ctx, req); err != nil {
			return records, fmt.Errorf("merge %s into %s: %w", f.Dataset, names[i], err)
		}
		f.ReplaceMerged(names[i], group.Files)
		records = append(records, Record{Dataset: f.Dataset, Output: names[i], Inputs: req.Inputs, Counter: i})
	}
	return records, nil
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
