package recommender

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const snapshotVersion = 1

type modelSnapshot struct {
	Version int
	Config  CollaborativeConfig

	Components int
	UserIDs    []string
	ItemIDs    []string

	UserFeatureNames []string
	ItemFeatureNames []string
	UserFeatures     [][]int
	ItemFeatures     [][]int

	UserFactors        [][]float64
	ItemFactors        [][]float64
	UserFeatureFactors [][]float64
	ItemFeatureFactors [][]float64
	ItemBias           []float64

	Interactions int
	TrainedAt    time.Time
}

// Save writes the published model to path. The file is replaced atomically.
func (e *CollaborativeEngine) Save(path string) error {
	model := e.model.Load()
	if model == nil {
		return ErrNotTrained
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	writer := bufio.NewWriter(tmp)
	if err := gob.NewEncoder(writer).Encode(e.snapshot(model)); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename model: %w", err)
	}
	committed = true

	e.logger.Info().Str("path", path).Uint64("generation", model.generation).Msg("collaborative model saved")
	return nil
}

// Load reads a model written by Save and publishes it. Nothing is published
// when the file cannot be decoded or fails validation.
func (e *CollaborativeEngine) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	defer file.Close()

	var snap modelSnapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snap); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}

	model, err := snap.restore()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}

	model.generation = e.generation.Add(1)
	e.model.Store(model)

	e.logger.Info().
		Str("path", path).
		Int("users", len(model.userIDs)).
		Int("items", len(model.itemIDs)).
		Uint64("generation", model.generation).
		Msg("collaborative model loaded")
	return nil
}

func (e *CollaborativeEngine) snapshot(model *factorModel) modelSnapshot {
	return modelSnapshot{
		Version:            snapshotVersion,
		Config:             e.cfg,
		Components:         model.components,
		UserIDs:            model.userIDs,
		ItemIDs:            model.itemIDs,
		UserFeatureNames:   model.userFeatureNames,
		ItemFeatureNames:   model.itemFeatureNames,
		UserFeatures:       model.userFeatures,
		ItemFeatures:       model.itemFeatures,
		UserFactors:        model.userFactors,
		ItemFactors:        model.itemFactors,
		UserFeatureFactors: model.userFeatureFactors,
		ItemFeatureFactors: model.itemFeatureFactors,
		ItemBias:           model.itemBias,
		Interactions:       model.interactions,
		TrainedAt:          model.trainedAt,
	}
}

func (s modelSnapshot) restore() (*factorModel, error) {
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported version %d", s.Version)
	}
	if s.Components <= 0 {
		return nil, errors.New("non-positive component count")
	}

	users, items := len(s.UserIDs), len(s.ItemIDs)
	if err := checkMatrix("user factors", s.UserFactors, users, s.Components); err != nil {
		return nil, err
	}
	if err := checkMatrix("item factors", s.ItemFactors, items, s.Components); err != nil {
		return nil, err
	}
	if err := checkMatrix("user feature factors", s.UserFeatureFactors, len(s.UserFeatureNames), s.Components); err != nil {
		return nil, err
	}
	if err := checkMatrix("item feature factors", s.ItemFeatureFactors, len(s.ItemFeatureNames), s.Components); err != nil {
		return nil, err
	}
	if len(s.ItemBias) != items {
		return nil, fmt.Errorf("item bias has %d entries, want %d", len(s.ItemBias), items)
	}

	userFeatures, err := checkFeatureRows("user features", s.UserFeatures, users, len(s.UserFeatureNames))
	if err != nil {
		return nil, err
	}
	itemFeatures, err := checkFeatureRows("item features", s.ItemFeatures, items, len(s.ItemFeatureNames))
	if err != nil {
		return nil, err
	}

	return &factorModel{
		components:         s.Components,
		userIDs:            s.UserIDs,
		itemIDs:            s.ItemIDs,
		userIndex:          indexOf(s.UserIDs),
		itemIndex:          indexOf(s.ItemIDs),
		userFeatureNames:   s.UserFeatureNames,
		itemFeatureNames:   s.ItemFeatureNames,
		userFeatures:       userFeatures,
		itemFeatures:       itemFeatures,
		userFactors:        s.UserFactors,
		itemFactors:        s.ItemFactors,
		userFeatureFactors: s.UserFeatureFactors,
		itemFeatureFactors: s.ItemFeatureFactors,
		itemBias:           s.ItemBias,
		interactions:       s.Interactions,
		trainedAt:          s.TrainedAt,
	}, nil
}

func checkMatrix(name string, matrix [][]float64, rows, cols int) error {
	if len(matrix) != rows {
		return fmt.Errorf("%s has %d rows, want %d", name, len(matrix), rows)
	}
	for r, row := range matrix {
		if len(row) != cols {
			return fmt.Errorf("%s row %d has %d columns, want %d", name, r, len(row), cols)
		}
	}
	return nil
}

// checkFeatureRows validates feature indices. gob drops empty slices, so a
// missing matrix is expanded to empty rows.
func checkFeatureRows(name string, matrix [][]int, rows, features int) ([][]int, error) {
	if matrix == nil {
		return make([][]int, rows), nil
	}
	if len(matrix) != rows {
		return nil, fmt.Errorf("%s has %d rows, want %d", name, len(matrix), rows)
	}
	for r, row := range matrix {
		for _, f := range row {
			if f < 0 || f >= features {
				return nil, fmt.Errorf("%s row %d references feature %d of %d", name, r, f, features)
			}
		}
	}
	return matrix, nil
}
