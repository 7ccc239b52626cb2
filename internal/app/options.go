package service

import (
	"time"

	"github.com/okian/sitstraight/internal/adapters/repository"
	"github.com/okian/sitstraight/internal/config"
	"github.com/okian/sitstraight/internal/extractor"
	"github.com/okian/sitstraight/internal/live"
	"github.com/okian/sitstraight/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses store instead of the one named by the configuration.
// The caller owns it: Stop leaves it open so a later Start can reuse it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.storeOpt = store
	}
}

// WithExtractorFactory supplies landmark models instead of the remote sidecar.
func WithExtractorFactory(f extractor.Factory) Option {
	return func(s *Service) {
		s.factory = f
	}
}

// WithFrameSource feeds the live loop from src instead of live.frames_dir.
func WithFrameSource(src live.FrameSource) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithClock overrides the time source for scoring and sample ids.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
