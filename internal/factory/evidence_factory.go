package factory

import (
	"context"
	"fmt"

	"github.com/mikey/image-mod-relay/internal/adapters/evidence"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"go.uber.org/zap"
)

// EvidenceFactory creates the evidence sink
type EvidenceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEvidenceFactory creates a new evidence factory
func NewEvidenceFactory(cfg *config.Config, logger *zap.Logger) *EvidenceFactory {
	return &EvidenceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateEvidenceStore creates the sink named by evidence.type
func (f *EvidenceFactory) CreateEvidenceStore() (core.EvidenceStore, error) {
	evidenceCfg := f.cfg.GetEvidence()

	switch evidenceCfg.Type {
	case "fs", "":
		return evidence.NewFileStore(evidenceCfg.Path, f.logger)
	case "s3":
		return evidence.NewS3Store(context.Background(), evidenceCfg, f.logger)
	default:
		return nil, fmt.Errorf("unsupported evidence type: %s", evidenceCfg.Type)
	}
}
