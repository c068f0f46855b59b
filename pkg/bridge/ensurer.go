package bridge

import (
	"context"
	"errors"

	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/illmade-knight/go-storebridge/pkg/topicpath"
	"github.com/rs/zerolog"
)

// Operation labels for storage call metrics.
const (
	OperationAuthenticate     = "authenticate"
	OperationCreateCollection = "create_collection"
	OperationWriteObject      = "write_object"
)

// CollectionEnsurer creates the nested collections of a topic path.
type CollectionEnsurer struct {
	metrics *Metrics
	logger  zerolog.Logger
}

// NewCollectionEnsurer creates an ensurer. metrics may be nil.
func NewCollectionEnsurer(metrics *Metrics, logger zerolog.Logger) *CollectionEnsurer {
	return &CollectionEnsurer{
		metrics: metrics,
		logger:  logger.With().Str("component", "CollectionEnsurer").Logger(),
	}
}

// Ensure creates "/s1/", "/s1/s2/", ... in order and returns the deepest
// path. Existing collections count as created. The walk stops at the first
// failure, which is returned as a *StepError; collections created before it
// are left in place. With no segments nothing is created and "/" is returned.
func (e *CollectionEnsurer) Ensure(ctx context.Context, client storage.Client, segments []string) (string, error) {
	if client == nil {
		return "", errors.New("storage client cannot be nil")
	}
	deepest := topicpath.Separator
	for _, p := range topicpath.CollectionPaths(segments) {
		res := client.CreateCollection(ctx, p)
		e.metrics.recordStorageCall(OperationCreateCollection, res)
		if !res.OK() {
			e.logger.Debug().Str("path", p).Int("code", res.Code()).Msg("Collection creation failed, stopping.")
			return "", &StepError{Step: StepEnsure, Path: p, Result: res}
		}
		deepest = p
	}
	return deepest, nil
}
