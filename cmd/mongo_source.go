package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// articleCollection is where the OPAC schema keeps its articles
const articleCollection = "article"

var publicArticles = bson.D{{Key: "is_public", Value: true}}

type mongoSource struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// mongoHosts expands the comma-separated hostnames setting, appending the
// default port to entries that do not carry one
func mongoHosts(hostnames string, port int) []string {
	var hosts []string
	for _, host := range strings.Split(hostnames, ",") {
		host = strings.TrimSpace(host)
		host = strings.TrimPrefix(host, "mongodb://")
		if host == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, strconv.Itoa(port))
		}
		hosts = append(hosts, host)
	}
	return hosts
}

// mongoReadPref maps the settings selector to a read preference
func mongoReadPref(selector string) *readpref.ReadPref {
	if strings.TrimSpace(selector) == "secondary" {
		return readpref.Secondary()
	}
	return readpref.Primary()
}

func mongoClientOptions(config MongoConfig) *options.ClientOptions {
	opts := options.Client().
		SetHosts(mongoHosts(config.Hostnames, config.Port)).
		SetReadPreference(mongoReadPref(config.ReadPreference)).
		SetServerSelectionTimeout(config.Timeout).
		SetConnectTimeout(config.Timeout)

	if config.ReplicaSet != "" {
		opts.SetReplicaSet(config.ReplicaSet)
	}
	if config.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   config.Username,
			Password:   config.Password,
			AuthSource: config.Database,
		})
	}

	return opts
}

func openMongoSource(ctx context.Context, config MongoConfig, logger *slog.Logger) (*mongoSource, error) {
	opts := mongoClientOptions(config)

	logger.Debug(fmt.Sprintf("Connecting to MongoDB %v (replica set %q, read preference %s)",
		opts.Hosts, config.ReplicaSet, opts.ReadPreference.Mode()))

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Connect does not dial; the ping surfaces selection timeouts now
	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, opts.ReadPreference); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &mongoSource{
		client:     client,
		collection: client.Database(config.Database).Collection(articleCollection),
		logger:     logger,
	}, nil
}

func (s *mongoSource) Count(ctx context.Context) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, publicArticles)
	if err != nil {
		return 0, fmt.Errorf("failed to count public articles: %w", err)
	}
	return count, nil
}

func (s *mongoSource) Each(ctx context.Context, fn func(SourceRecord) error) error {
	cursor, err := s.collection.Find(ctx, publicArticles)
	if err != nil {
		return fmt.Errorf("failed to query public articles: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		if err := fn(decodeMongoArticle(cursor.Current)); err != nil {
			return err
		}
	}

	if err := cursor.Err(); err != nil {
		return fmt.Errorf("error iterating over articles: %w", err)
	}
	return nil
}

func (s *mongoSource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// decodeMongoArticle decodes one raw document, keeping the identifier even
// when the rest of the document does not fit the Article shape
func decodeMongoArticle(raw bson.Raw) SourceRecord {
	var record SourceRecord

	if value, err := raw.LookupErr("_id"); err == nil {
		if id, ok := value.StringValueOK(); ok {
			record.ID = id
		} else {
			record.ID = value.String()
		}
	}

	if err := bson.Unmarshal(raw, &record.Article); err != nil {
		record.Err = fmt.Errorf("failed to decode article: %w", err)
	} else if record.Article.ID != "" {
		record.ID = record.Article.ID
	}

	return record
}
