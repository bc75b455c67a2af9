package analyzer

// Builtins returns one instance of every built-in analyzer. Callers filter
// the slice against their enabled-set before handing it to the engine.
func Builtins() []Analyzer {
	return []Analyzer{
		NullCheck{},
		SchemaDrift{},
		TimestampCheck{},
		Encoding{},
		TokenStats{},
		Outliers{},
		Noise{},
		LanguageCheck{},
		NewFluency(),
		NewToxicity(),
		NewBias(),
		NewPII(),
		StructureCheck{},
	}
}

// ByName returns the built-in analyzer with the given name.
func ByName(name string) (Analyzer, bool) {
	for _, a := range Builtins() {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}
