package recommender

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	negativeSampleAttempts = 32
	maxLogit               = 35.0
	// factorInitScale bounds the initial factors to ±0.15.
	factorInitScale = 0.3
)

// CollaborativeConfig holds the hyper-parameters of the latent factor model.
type CollaborativeConfig struct {
	Components     int
	Epochs         int
	LearningRate   float64
	Regularization float64
	Seed           int64
	// NegativeSamples is the number of unobserved courses drawn per observed
	// interaction in every epoch.
	NegativeSamples int
	// Vocabulary closes the feature space when non-empty.
	Vocabulary []string
}

// DefaultCollaborativeConfig returns the stock hyper-parameters: 30 components
// trained for 20 epochs with 5 negative samples per interaction.
func DefaultCollaborativeConfig() CollaborativeConfig {
	return CollaborativeConfig{
		Components:      30,
		Epochs:          20,
		LearningRate:    0.05,
		Regularization:  1e-4,
		Seed:            42,
		NegativeSamples: 5,
	}
}

func (c CollaborativeConfig) withDefaults() CollaborativeConfig {
	defaults := DefaultCollaborativeConfig()
	if c.Components <= 0 {
		c.Components = defaults.Components
	}
	if c.Epochs <= 0 {
		c.Epochs = defaults.Epochs
	}
	if c.LearningRate <= 0 {
		c.LearningRate = defaults.LearningRate
	}
	if c.Regularization < 0 {
		c.Regularization = defaults.Regularization
	}
	if c.NegativeSamples <= 0 {
		c.NegativeSamples = defaults.NegativeSamples
	}
	return c
}

// ModelStats summarizes the prepared dataset and the published model.
type ModelStats struct {
	Users        int       `json:"users"`
	Items        int       `json:"items"`
	Interactions int       `json:"interactions"`
	Generation   uint64    `json:"generation"`
	TrainedAt    time.Time `json:"trained_at"`
}

// CollaborativeEngine learns user and course representations from weighted
// interactions and side features with a pairwise ranking objective.
type CollaborativeEngine struct {
	cfg        CollaborativeConfig
	vocabulary map[string]struct{}
	logger     zerolog.Logger

	mu      sync.Mutex
	dataset *dataset

	model      atomic.Pointer[factorModel]
	generation atomic.Uint64
}

// NewCollaborativeEngine constructs an untrained engine.
func NewCollaborativeEngine(cfg CollaborativeConfig, logger zerolog.Logger) *CollaborativeEngine {
	cfg = cfg.withDefaults()
	return &CollaborativeEngine{
		cfg:        cfg,
		vocabulary: newVocabulary(cfg.Vocabulary),
		logger:     logger.With().Str("component", "collaborative_engine").Logger(),
	}
}

// Prepare indexes interactions and side features for the next Train. The
// published model is left untouched.
func (e *CollaborativeEngine) Prepare(interactions []Interaction, userFeatures, itemFeatures Features) error {
	ds, err := buildDataset(interactions, userFeatures, itemFeatures, e.vocabulary)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.dataset = ds
	e.mu.Unlock()

	e.logger.Debug().
		Int("users", len(ds.userIDs)).
		Int("items", len(ds.itemIDs)).
		Int("interactions", ds.nnz).
		Int("user_features", len(ds.userFeatureNames)).
		Int("item_features", len(ds.itemFeatureNames)).
		Msg("dataset prepared")
	return nil
}

// KnownFeatures removes feature values outside the configured vocabulary and
// reports the names it removed. With an open vocabulary it is a no-op.
func (e *CollaborativeEngine) KnownFeatures(features Features) (Features, []string) {
	return filterFeatures(features, e.vocabulary)
}

// Train fits a fresh model on the prepared dataset and publishes it. A
// cancelled context aborts between epochs and keeps the previous model.
func (e *CollaborativeEngine) Train(ctx context.Context, epochs int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ds := e.dataset
	if ds == nil {
		return ErrNotPrepared
	}
	if epochs <= 0 {
		epochs = e.cfg.Epochs
	}

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	model := newFactorModel(ds, e.cfg.Components, factorInitScale, rng)

	type triple struct {
		user, item int
		weight     float64
	}
	triples := make([]triple, 0, ds.nnz)
	positives := make([]map[int]struct{}, len(ds.userIDs))
	for u, row := range ds.rows {
		positives[u] = make(map[int]struct{}, len(row))
		for _, observed := range row {
			positives[u][observed.item] = struct{}{}
			weight := 1.0
			if ds.maxWeight > 0 {
				weight = observed.weight / ds.maxWeight
			}
			if weight == 0 {
				continue
			}
			triples = append(triples, triple{user: u, item: observed.item, weight: weight})
		}
	}

	items := len(ds.itemIDs)
	start := time.Now()
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			e.logger.Warn().Int("epoch", epoch).Msg("training cancelled")
			return err
		}

		rng.Shuffle(len(triples), func(i, j int) { triples[i], triples[j] = triples[j], triples[i] })

		var loss float64
		var steps int
		for _, t := range triples {
			for n := 0; n < e.cfg.NegativeSamples; n++ {
				negative, ok := sampleNegative(rng, items, positives[t.user])
				if !ok {
					break
				}
				loss += model.step(t.user, t.item, negative, t.weight, e.cfg.LearningRate, e.cfg.Regularization)
				steps++
			}
		}

		if steps > 0 {
			e.logger.Debug().Int("epoch", epoch+1).Float64("loss", loss/float64(steps)).Msg("epoch finished")
		}
	}

	model.generation = e.generation.Add(1)
	model.trainedAt = time.Now().UTC()
	model.interactions = ds.nnz
	e.model.Store(model)

	e.logger.Info().
		Int("epochs", epochs).
		Int("users", len(ds.userIDs)).
		Int("items", items).
		Uint64("generation", model.generation).
		Dur("duration", time.Since(start)).
		Msg("collaborative model trained")
	return nil
}

// Recommend scores the candidates for a known user. Candidates the model has
// never seen are dropped.
func (e *CollaborativeEngine) Recommend(userID string, candidates []string, topN int) ([]ScoredCandidate, error) {
	model := e.model.Load()
	if model == nil {
		return nil, ErrNotTrained
	}

	u, ok := model.userIndex[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	userRepr := model.userRepr(u)

	seen := make(map[string]struct{}, len(candidates))
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, id := range candidates {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		i, known := model.itemIndex[id]
		if !known {
			continue
		}
		scored = append(scored, ScoredCandidate{CourseID: id, Score: model.score(userRepr, i)})
	}

	sortCandidates(scored)
	return truncate(scored, topN), nil
}

// Trained reports whether a model has been published.
func (e *CollaborativeEngine) Trained() bool {
	return e.model.Load() != nil
}

// Generation identifies the published model, 0 when untrained.
func (e *CollaborativeEngine) Generation() uint64 {
	if model := e.model.Load(); model != nil {
		return model.generation
	}
	return 0
}

// Stats describes the published model.
func (e *CollaborativeEngine) Stats() ModelStats {
	model := e.model.Load()
	if model == nil {
		return ModelStats{}
	}
	return ModelStats{
		Users:        len(model.userIDs),
		Items:        len(model.itemIDs),
		Interactions: model.interactions,
		Generation:   model.generation,
		TrainedAt:    model.trainedAt,
	}
}

func sampleNegative(rng *rand.Rand, items int, positives map[int]struct{}) (int, bool) {
	if items == 0 || len(positives) >= items {
		return 0, false
	}
	for attempt := 0; attempt < negativeSampleAttempts; attempt++ {
		candidate := rng.Intn(items)
		if _, observed := positives[candidate]; !observed {
			return candidate, true
		}
	}
	return 0, false
}

// factorModel is the immutable published state of a training run.
type factorModel struct {
	components int

	userIDs   []string
	itemIDs   []string
	userIndex map[string]int
	itemIndex map[string]int

	userFeatureNames []string
	itemFeatureNames []string
	userFeatures     [][]int
	itemFeatures     [][]int

	userFactors        [][]float64
	itemFactors        [][]float64
	userFeatureFactors [][]float64
	itemFeatureFactors [][]float64
	itemBias           []float64

	generation   uint64
	trainedAt    time.Time
	interactions int
}

func newFactorModel(ds *dataset, components int, scale float64, rng *rand.Rand) *factorModel {
	return &factorModel{
		components:         components,
		userIDs:            ds.userIDs,
		itemIDs:            ds.itemIDs,
		userIndex:          ds.userIndex,
		itemIndex:          ds.itemIndex,
		userFeatureNames:   ds.userFeatureNames,
		itemFeatureNames:   ds.itemFeatureNames,
		userFeatures:       ds.userFeatures,
		itemFeatures:       ds.itemFeatures,
		userFactors:        randomMatrix(rng, len(ds.userIDs), components, scale),
		itemFactors:        randomMatrix(rng, len(ds.itemIDs), components, scale),
		userFeatureFactors: randomMatrix(rng, len(ds.userFeatureNames), components, scale),
		itemFeatureFactors: randomMatrix(rng, len(ds.itemFeatureNames), components, scale),
		itemBias:           make([]float64, len(ds.itemIDs)),
	}
}

func randomMatrix(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	matrix := make([][]float64, rows)
	for r := range matrix {
		row := make([]float64, cols)
		for c := range row {
			row[c] = (rng.Float64() - 0.5) * scale
		}
		matrix[r] = row
	}
	return matrix
}

func (m *factorModel) userRepr(u int) []float64 {
	return representation(m.userFactors[u], m.userFeatureFactors, m.userFeatures[u])
}

func (m *factorModel) itemRepr(i int) []float64 {
	return representation(m.itemFactors[i], m.itemFeatureFactors, m.itemFeatures[i])
}

// representation sums the identity factor with the factors of every feature.
func representation(identity []float64, featureFactors [][]float64, features []int) []float64 {
	out := make([]float64, len(identity))
	copy(out, identity)
	for _, f := range features {
		for d, v := range featureFactors[f] {
			out[d] += v
		}
	}
	return out
}

func (m *factorModel) score(userRepr []float64, i int) float64 {
	return dot(userRepr, m.itemRepr(i)) + m.itemBias[i]
}

// step applies one weighted BPR update for user u preferring item i over j
// and returns the weighted loss before the update.
func (m *factorModel) step(u, i, j int, weight, lr, reg float64) float64 {
	ru := m.userRepr(u)
	ri := m.itemRepr(i)
	rj := m.itemRepr(j)

	x := dot(ru, ri) - dot(ru, rj) + m.itemBias[i] - m.itemBias[j]
	x = math.Max(-maxLogit, math.Min(maxLogit, x))

	// d/dx log(sigmoid(x)) = sigmoid(-x)
	g := weight / (1 + math.Exp(x))

	gradUser := make([]float64, m.components)
	gradPos := make([]float64, m.components)
	gradNeg := make([]float64, m.components)
	for d := 0; d < m.components; d++ {
		gradUser[d] = g * (ri[d] - rj[d])
		gradPos[d] = g * ru[d]
		gradNeg[d] = -g * ru[d]
	}

	ascend(m.userFactors[u], gradUser, lr, reg)
	for _, f := range m.userFeatures[u] {
		ascend(m.userFeatureFactors[f], gradUser, lr, reg)
	}
	ascend(m.itemFactors[i], gradPos, lr, reg)
	for _, f := range m.itemFeatures[i] {
		ascend(m.itemFeatureFactors[f], gradPos, lr, reg)
	}
	ascend(m.itemFactors[j], gradNeg, lr, reg)
	for _, f := range m.itemFeatures[j] {
		ascend(m.itemFeatureFactors[f], gradNeg, lr, reg)
	}

	m.itemBias[i] += lr * (g - reg*m.itemBias[i])
	m.itemBias[j] += lr * (-g - reg*m.itemBias[j])

	return weight * math.Log1p(math.Exp(-x))
}

func ascend(params, grad []float64, lr, reg float64) {
	for d := range params {
		params[d] += lr * (grad[d] - reg*params[d])
	}
}
