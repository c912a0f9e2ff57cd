package argstore

// OptionTable maps a canonical stage name to its free-form option strings.
// It is built once from a per-stage argument so that command-line
// construction never has to re-resolve aliases.
type OptionTable map[string][]string

// BuildOptionTable resolves the per-stage argument stored under key for each
// of the given stages. When a stage has entries under both its name and its
// substep alias the two lists are concatenated (name first) and the alias
// entry is removed from the stored argument. Flat arguments apply to every
// stage unchanged.
func (s *Store) BuildOptionTable(key string, stages []Scope) OptionTable {
	table := make(OptionTable, len(stages))
	a, ok := s.args[key]
	if !ok {
		s.tables[key] = table
		return table
	}

	if !a.IsPerStage() {
		flat := ToStrings(a.value)
		for _, stage := range stages {
			table[stage.Name] = append([]string(nil), flat...)
		}
		s.tables[key] = table
		return table
	}

	for _, stage := range stages {
		byName, hasName := a.perStage[stage.Name]
		byAlias, hasAlias := a.perStage[stage.Substep]
		if stage.Substep == "" || stage.Substep == stage.Name {
			hasAlias = false
		}
		if hasName && hasAlias {
			joined := append(ToStrings(byName), ToStrings(byAlias)...)
			a.perStage[stage.Name] = joined
			delete(a.perStage, stage.Substep)
		}
	}

	for _, stage := range stages {
		if v, found := a.Resolve(stage); found {
			table[stage.Name] = ToStrings(v)
		}
	}

	s.tables[key] = table
	return table
}

// StageOptions returns the options key carries for the stage, using the
// table built by BuildOptionTable. When no table exists yet one is built for
// this stage alone.
func (s *Store) StageOptions(key string, stage Scope) []string {
	table, ok := s.tables[key]
	if !ok {
		table = s.BuildOptionTable(key, []Scope{stage})
	}
	opts, found := table[stage.Name]
	if !found {
		if v, resolved := s.Resolve(key, stage); resolved {
			return ToStrings(v)
		}
		return nil
	}
	return append([]string(nil), opts...)
}
