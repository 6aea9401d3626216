// Package consumer provides the record consumers wired behind the recorder:
// persistence, result files, a JSON-lines event stream, logging and
// external agents.
package consumer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/caevv/testrecorder/internal/recorder"
	"github.com/caevv/testrecorder/internal/store"
)

// Set is the consumer built from a configuration, plus whatever must be
// closed once the invocation is over.
type Set struct {
	recorder.Consumer
	closers []io.Closer
}

// Close drains asynchronous consumers and closes opened outputs.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// FromConfig assembles the consumers enabled by cfg. A nil store disables
// persistence. Agents run asynchronously so slow agents do not hold up the
// recorder.
func FromConfig(cfg *config.Config, st store.Store, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}

	set := &Set{}
	consumers := []recorder.Consumer{NewLogConsumer(logger)}

	if st != nil {
		consumers = append(consumers, NewStoreConsumer(st))
	}

	if cfg.Outputs.Dir != "" {
		consumers = append(consumers, NewFileConsumer(cfg.Outputs.Dir, cfg.Outputs.Modules))
	}

	if cfg.Outputs.Stream != "" {
		w, closer, err := openStream(cfg.Outputs.Stream)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			set.closers = append(set.closers, closer)
		}
		consumers = append(consumers, NewStreamConsumer(w))
	}

	if !cfg.Agents.Hooks.Empty() {
		executor := NewExecutor(logger)
		executor.Discover(cfg.Agents.Paths)
		agents, err := NewAgentConsumer(executor, cfg.Agents, logger)
		if err != nil {
			set.Close()
			return nil, err
		}
		async := NewAsyncConsumer(agents, DefaultQueueSize, logger)
		// drain agents before closing the stream file
		set.closers = append([]io.Closer{async}, set.closers...)
		consumers = append(consumers, async)
	}

	set.Consumer = recorder.Multi(consumers...)
	return set, nil
}

func openStream(target string) (io.Writer, io.Closer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open event stream %s: %w", target, err)
	}
	return f, f, nil
}
