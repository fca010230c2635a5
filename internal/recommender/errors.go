package recommender

import "errors"

var (
	// ErrNotFitted indicates the content engine was queried before Fit.
	ErrNotFitted = errors.New("content model is not fitted")
	// ErrNotPrepared indicates Train was called before Prepare.
	ErrNotPrepared = errors.New("collaborative dataset is not prepared")
	// ErrNotTrained indicates the collaborative engine was queried before Train.
	ErrNotTrained = errors.New("collaborative model is not trained")
	// ErrUnknownUser indicates the user is absent from the trained collaborative model.
	ErrUnknownUser = errors.New("user is unknown to the collaborative model")
	// ErrInvalidFeature indicates a side feature outside the configured vocabulary.
	ErrInvalidFeature = errors.New("feature is not part of the vocabulary")
	// ErrInvalidInteraction indicates a malformed interaction record.
	ErrInvalidInteraction = errors.New("invalid interaction")
	// ErrCorruptModel indicates a persisted model could not be decoded or is inconsistent.
	ErrCorruptModel = errors.New("persisted model is corrupt")
)
