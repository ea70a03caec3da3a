package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrConnect is returned when the article store cannot be reached
var ErrConnect = errors.New("failed to connect to article store")

// SourceRecord is one public article as read from the store. Err is set when
// the stored document could not be decoded; ID is filled whenever the
// identifier itself was readable.
type SourceRecord struct {
	ID      string
	Article Article
	Err     error
}

// ArticleSource reads the publicly visible articles of a store
type ArticleSource interface {
	// Count returns the number of public articles
	Count(ctx context.Context) (int64, error)

	// Each calls fn once per public article, stopping at the first error fn returns
	Each(ctx context.Context, fn func(SourceRecord) error) error

	// Close releases the connection
	Close(ctx context.Context) error
}

// OpenSource connects to the configured article store. A failed connection
// is logged and reported as ErrConnect so the run can stop before querying.
func OpenSource(ctx context.Context, config *Config, logger *slog.Logger) (ArticleSource, error) {
	var (
		source ArticleSource
		err    error
	)

	switch config.Source.Driver {
	case DriverPostgres:
		source, err = openPostgresSource(ctx, config.Postgres, logger)
	case DriverMongo, "":
		source, err = openMongoSource(ctx, config.Mongo, logger)
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrSourceDriverInvalid, config.Source.Driver)
	}

	if err != nil {
		logger.Error(fmt.Sprintf("❌ Timeout or connection failure: %v", err))
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return source, nil
}
