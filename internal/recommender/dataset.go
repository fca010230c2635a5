package recommender

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Features maps a user or course id to its side features. Feature names are
// normalized to trimmed lower case and de-duplicated when a dataset is built.
type Features map[string][]string

type entry struct {
	item   int
	weight float64
}

// dataset is the prepared, index-aligned training input.
type dataset struct {
	userIDs   []string
	itemIDs   []string
	userIndex map[string]int
	itemIndex map[string]int

	// rows[u] holds the observed items of user u ordered by item index;
	// duplicate (user, item) records are summed.
	rows      [][]entry
	nnz       int
	maxWeight float64

	userFeatureNames []string
	itemFeatureNames []string
	userFeatures     [][]int
	itemFeatures     [][]int
}

func buildDataset(interactions []Interaction, userFeatures, itemFeatures Features, vocabulary map[string]struct{}) (*dataset, error) {
	users := make(map[string]struct{})
	items := make(map[string]struct{})

	for i, interaction := range interactions {
		userID := strings.TrimSpace(interaction.UserID)
		courseID := strings.TrimSpace(interaction.CourseID)
		if userID == "" || courseID == "" {
			return nil, fmt.Errorf("%w: record %d has an empty id", ErrInvalidInteraction, i)
		}
		if interaction.Weight < 0 || math.IsNaN(interaction.Weight) || math.IsInf(interaction.Weight, 0) {
			return nil, fmt.Errorf("%w: record %d has weight %v", ErrInvalidInteraction, i, interaction.Weight)
		}
		users[userID] = struct{}{}
		items[courseID] = struct{}{}
	}
	for id := range userFeatures {
		if id = strings.TrimSpace(id); id != "" {
			users[id] = struct{}{}
		}
	}
	for id := range itemFeatures {
		if id = strings.TrimSpace(id); id != "" {
			items[id] = struct{}{}
		}
	}

	ds := &dataset{
		userIDs: sortedKeys(users),
		itemIDs: sortedKeys(items),
	}
	ds.userIndex = indexOf(ds.userIDs)
	ds.itemIndex = indexOf(ds.itemIDs)

	accumulated := make([]map[int]float64, len(ds.userIDs))
	for _, interaction := range interactions {
		u := ds.userIndex[strings.TrimSpace(interaction.UserID)]
		i := ds.itemIndex[strings.TrimSpace(interaction.CourseID)]
		if accumulated[u] == nil {
			accumulated[u] = make(map[int]float64)
		}
		accumulated[u][i] += interaction.Weight
	}

	ds.rows = make([][]entry, len(ds.userIDs))
	for u, row := range accumulated {
		entries := make([]entry, 0, len(row))
		for item, weight := range row {
			entries = append(entries, entry{item: item, weight: weight})
			if weight > ds.maxWeight {
				ds.maxWeight = weight
			}
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].item < entries[b].item })
		ds.rows[u] = entries
		ds.nnz += len(entries)
	}

	var err error
	ds.userFeatureNames, ds.userFeatures, err = buildFeatureMatrix(userFeatures, ds.userIndex, len(ds.userIDs), vocabulary)
	if err != nil {
		return nil, fmt.Errorf("user features: %w", err)
	}
	ds.itemFeatureNames, ds.itemFeatures, err = buildFeatureMatrix(itemFeatures, ds.itemIndex, len(ds.itemIDs), vocabulary)
	if err != nil {
		return nil, fmt.Errorf("item features: %w", err)
	}

	return ds, nil
}

// buildFeatureMatrix returns the sorted feature names and, per entity row,
// the indices of its features.
func buildFeatureMatrix(features Features, index map[string]int, rows int, vocabulary map[string]struct{}) ([]string, [][]int, error) {
	normalized := make(map[int][]string, len(features))
	names := make(map[string]struct{})

	for id, values := range features {
		row, ok := index[strings.TrimSpace(id)]
		if !ok {
			continue
		}
		seen := make(map[string]struct{}, len(values))
		for _, value := range values {
			name := normalizeTopic(value)
			if name == "" {
				continue
			}
			if vocabulary != nil {
				if _, allowed := vocabulary[name]; !allowed {
					return nil, nil, fmt.Errorf("%w: %q", ErrInvalidFeature, name)
				}
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names[name] = struct{}{}
			normalized[row] = append(normalized[row], name)
		}
	}

	featureNames := sortedKeys(names)
	featureIndex := indexOf(featureNames)

	matrix := make([][]int, rows)
	for row, values := range normalized {
		indices := make([]int, 0, len(values))
		for _, name := range values {
			indices = append(indices, featureIndex[name])
		}
		sort.Ints(indices)
		matrix[row] = indices
	}
	return featureNames, matrix, nil
}

// filterFeatures keeps the values found in vocabulary and returns the sorted,
// de-duplicated names it dropped. A nil vocabulary keeps everything.
func filterFeatures(features Features, vocabulary map[string]struct{}) (Features, []string) {
	if vocabulary == nil || len(features) == 0 {
		return features, nil
	}

	kept := make(Features, len(features))
	dropped := make(map[string]struct{})
	for id, values := range features {
		allowed := make([]string, 0, len(values))
		for _, value := range values {
			name := normalizeTopic(value)
			if name == "" {
				continue
			}
			if _, ok := vocabulary[name]; !ok {
				dropped[name] = struct{}{}
				continue
			}
			allowed = append(allowed, value)
		}
		if len(allowed) > 0 {
			kept[id] = allowed
		}
	}
	return kept, sortedKeys(dropped)
}

func indexOf(ids []string) map[string]int {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	return index
}

// newVocabulary returns nil for an open vocabulary.
func newVocabulary(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	vocabulary := make(map[string]struct{}, len(values))
	for _, value := range values {
		if name := normalizeTopic(value); name != "" {
			vocabulary[name] = struct{}{}
		}
	}
	if len(vocabulary) == 0 {
		return nil
	}
	return vocabulary
}
