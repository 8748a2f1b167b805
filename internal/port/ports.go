// Package port defines the interfaces (ports) for external collaborators.
// Following hexagonal architecture, these ports decouple the analysis
// pipeline from concrete sources, sinks and stores.
package port

import (
	"context"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
)

// CustomerSource loads one snapshot of raw customer records.
type CustomerSource interface {
	Name() string
	Load(ctx context.Context) ([]domain.CustomerRecord, error)
}

// ArtifactSink persists the outputs of a finished run and returns the
// locations it wrote.
type ArtifactSink interface {
	Write(ctx context.Context, result *domain.AnalysisResult) ([]string, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Progress receives per-customer progress of long stages.
type Progress interface {
	Start(stage string, total int)
	Add(n int)
	Finish()
}
