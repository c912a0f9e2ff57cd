// Package argstore holds the job's argument dictionary. Arguments are either
// flat values or per-stage maps whose entry is chosen by the asking stage.
package argstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// KeyAll selects the fallback entry of a per-stage argument.
	KeyAll = "all"
	// KeyFirst selects the entry used by the first executor of the chain.
	KeyFirst = "first"
)

// Scope identifies the stage asking for an argument value.
type Scope struct {
	Name    string
	Substep string
	First   bool
}

// Arg is a single argument entry.
type Arg struct {
	value    any
	perStage map[string]any
}

// Flat wraps a value that is the same for every stage.
func Flat(v any) *Arg {
	return &Arg{value: v}
}

// PerStage wraps a map keyed by stage name, substep alias, "first" or "all".
func PerStage(values map[string]any) *Arg {
	clone := make(map[string]any, len(values))
	for k, v := range values {
		clone[k] = v
	}
	return &Arg{perStage: clone}
}

// IsPerStage reports whether the argument carries per-stage entries.
func (a *Arg) IsPerStage() bool {
	return a != nil && a.perStage != nil
}

// Value returns the flat value, or the per-stage map for per-stage arguments.
func (a *Arg) Value() any {
	if a == nil {
		return nil
	}
	if a.perStage != nil {
		return a.perStage
	}
	return a.value
}

// Resolve returns the value the given stage should see. Per-stage entries are
// looked up by name, then substep alias, then "first" (first executor only),
// then "all".
func (a *Arg) Resolve(s Scope) (any, bool) {
	if a == nil {
		return nil, false
	}
	if a.perStage == nil {
		return a.value, a.value != nil
	}
	for _, key := range lookupOrder(s) {
		if v, ok := a.perStage[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func lookupOrder(s Scope) []string {
	keys := make([]string, 0, 4)
	if s.Name != "" {
		keys = append(keys, s.Name)
	}
	if s.Substep != "" && s.Substep != s.Name {
		keys = append(keys, s.Substep)
	}
	if s.First {
		keys = append(keys, KeyFirst)
	}
	return append(keys, KeyAll)
}

// Store is the mutable argument dictionary shared by every stage of a job.
// It is not safe for concurrent use; stages run one at a time.
type Store struct {
	args   map[string]*Arg
	tables map[string]OptionTable
}

// New creates an empty Store.
func New() *Store {
	return &Store{args: make(map[string]*Arg), tables: make(map[string]OptionTable)}
}

// Set stores a flat value under key.
func (s *Store) Set(key string, v any) {
	s.SetArg(key, Flat(v))
}

// SetArg stores a prepared argument under key.
func (s *Store) SetArg(key string, a *Arg) {
	s.args[key] = a
	delete(s.tables, key)
}

// Get returns the raw argument for key.
func (s *Store) Get(key string) (*Arg, bool) {
	a, ok := s.args[key]
	return a, ok
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	_, ok := s.args[key]
	return ok
}

// Delete removes key.
func (s *Store) Delete(key string) {
	delete(s.args, key)
	delete(s.tables, key)
}

// Keys returns the argument names in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.args))
	for k := range s.args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve returns the value key has for the given stage.
func (s *Store) Resolve(key string, scope Scope) (any, bool) {
	a, ok := s.args[key]
	if !ok {
		return nil, false
	}
	return a.Resolve(scope)
}

// Bool reports whether key resolves to a true value for the stage.
func (s *Store) Bool(key string, scope Scope) bool {
	v, ok := s.Resolve(key, scope)
	if !ok {
		return false
	}
	b, err := ToBool(v)
	return err == nil && b
}

// Int resolves key as an integer. ok is false when the key is absent.
func (s *Store) Int(key string, scope Scope) (int64, bool, error) {
	v, ok := s.Resolve(key, scope)
	if !ok {
		return 0, false, nil
	}
	n, err := ToInt(v)
	if err != nil {
		return 0, true, fmt.Errorf("argument %s: %w", key, err)
	}
	return n, true, nil
}

// String resolves key as a string.
func (s *Store) String(key string, scope Scope) (string, bool) {
	v, ok := s.Resolve(key, scope)
	if !ok {
		return "", false
	}
	return ToString(v), true
}

// Strings resolves key as a list of strings. A scalar becomes a one-item list.
func (s *Store) Strings(key string, scope Scope) ([]string, bool) {
	v, ok := s.Resolve(key, scope)
	if !ok {
		return nil, false
	}
	return ToStrings(v), true
}

// Snapshot resolves every argument for the stage. Unresolvable per-stage
// arguments are omitted.
func (s *Store) Snapshot(scope Scope) map[string]any {
	out := make(map[string]any, len(s.args))
	for key, a := range s.args {
		if v, ok := a.Resolve(scope); ok {
			out[key] = v
		}
	}
	return out
}

// ToBool converts YAML-ish scalars to bool.
func ToBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(t))
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	default:
		return false, fmt.Errorf("cannot interpret %T as bool", v)
	}
}

// ToInt converts YAML-ish scalars to int64. Floats must be integral.
func ToInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint64:
		return int64(t), nil
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("value %v is not an integer", t)
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot interpret %T as integer", v)
	}
}

// ToString renders any scalar value as a string.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// ToStrings renders lists and scalars as a list of strings.
func ToStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, ToString(item))
		}
		return out
	default:
		return []string{ToString(t)}
	}
}
