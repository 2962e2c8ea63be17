package events

import (
	"context"
	"time"

	"github.com/withObsrvr/enrollstat/internal/logging"
)

// Config configures event emission.
type Config struct {
	Enabled    bool
	Endpoint   string // HTTP endpoint; empty writes the JSONL log only
	Dir        string // JSONL log and chain heads
	Retries    int
	RetryDelay time.Duration
}

// Emitter publishes refresh events.
type Emitter interface {
	EmitRefresh(ctx context.Context, evt RefreshEvent) (*RefreshEvent, error)
	Close() error
}

// NewEmitter picks an emitter for cfg. Setup failures fall back to a quieter
// emitter rather than failing the refresh.
func NewEmitter(cfg Config) Emitter {
	log := logging.Component("events")
	if !cfg.Enabled {
		log.Debug("events disabled, using no-op emitter")
		return noopEmitter{}
	}

	if cfg.Endpoint != "" {
		emitter, err := NewHTTPEmitter(cfg)
		if err != nil {
			log.Warn("failed to create HTTP emitter, falling back to file", "error", err)
			return fileOnly(cfg)
		}
		log.Info("using HTTP emitter", "endpoint", cfg.Endpoint)
		return httpEmitterWrapper{emitter: emitter}
	}
	return fileOnly(cfg)
}

func fileOnly(cfg Config) Emitter {
	log := logging.Component("events")
	emitter, err := NewFileEmitter(cfg.Dir)
	if err != nil {
		log.Warn("failed to create file emitter, using no-op", "error", err)
		return noopEmitter{}
	}
	log.Info("using file emitter", "path", emitter.log.Path())
	return fileEmitterWrapper{emitter: emitter}
}

type httpEmitterWrapper struct {
	emitter *HTTPEmitter
}

func (w httpEmitterWrapper) EmitRefresh(ctx context.Context, evt RefreshEvent) (*RefreshEvent, error) {
	if err := w.emitter.Emit(ctx, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (w httpEmitterWrapper) Close() error {
	return w.emitter.Close()
}

type fileEmitterWrapper struct {
	emitter *FileEmitter
}

func (w fileEmitterWrapper) EmitRefresh(_ context.Context, evt RefreshEvent) (*RefreshEvent, error) {
	if err := w.emitter.Emit(&evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (w fileEmitterWrapper) Close() error {
	return w.emitter.Close()
}

type noopEmitter struct{}

func (noopEmitter) EmitRefresh(_ context.Context, evt RefreshEvent) (*RefreshEvent, error) {
	return &evt, nil
}

func (noopEmitter) Close() error {
	return nil
}
