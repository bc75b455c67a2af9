package analyzer

import "context"

// Scorer is the prediction interface heavy analyzers consume: a loaded
// model that maps text to a score in [0, 1]. Training and hosting are
// outside the core; the engine only calls Predict.
type Scorer interface {
	Predict(ctx context.Context, text []byte) (float64, error)
}

// Classifier maps text to a label with a confidence.
type Classifier interface {
	Classify(ctx context.Context, text []byte) (label string, confidence float64, err error)
}

// Embedder maps text to a dense vector for similarity clustering.
type Embedder interface {
	Embed(ctx context.Context, text []byte) ([]float32, error)
}

// Model capability names used by the registry.
const (
	ModelFluency   = "fluency"
	ModelToxicity  = "toxicity"
	ModelBias      = "bias"
	ModelPII       = "pii"
	ModelStructure = "structure"
	ModelEmbedding = "embedding"
)

// ModelRegistry holds the models available to a run. Heavy analyzers whose
// model is absent are skipped at run start, before any row is processed.
type ModelRegistry struct {
	scorers     map[string]Scorer
	classifiers map[string]Classifier
	embedder    Embedder
}

// NewModelRegistry creates an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		scorers:     make(map[string]Scorer),
		classifiers: make(map[string]Classifier),
	}
}

// RegisterScorer attaches a scoring model under a capability name.
func (m *ModelRegistry) RegisterScorer(name string, s Scorer) {
	m.scorers[name] = s
}

// RegisterClassifier attaches a classification model.
func (m *ModelRegistry) RegisterClassifier(name string, c Classifier) {
	m.classifiers[name] = c
}

// RegisterEmbedder attaches the embedding model used for near-duplicate
// clustering.
func (m *ModelRegistry) RegisterEmbedder(e Embedder) {
	m.embedder = e
}

// Scorer returns the scoring model registered under name.
func (m *ModelRegistry) Scorer(name string) (Scorer, bool) {
	if m == nil {
		return nil, false
	}
	s, ok := m.scorers[name]
	return s, ok
}

// Classifier returns the classification model registered under name.
func (m *ModelRegistry) Classifier(name string) (Classifier, bool) {
	if m == nil {
		return nil, false
	}
	c, ok := m.classifiers[name]
	return c, ok
}

// Embedder returns the embedding model, if registered.
func (m *ModelRegistry) Embedder() (Embedder, bool) {
	if m == nil || m.embedder == nil {
		return nil, false
	}
	return m.embedder, true
}

// Has reports whether the named capability is available.
func (m *ModelRegistry) Has(name string) bool {
	if m == nil {
		return false
	}
	if name == ModelEmbedding {
		return m.embedder != nil
	}
	if _, ok := m.scorers[name]; ok {
		return true
	}
	_, ok := m.classifiers[name]
	return ok
}
