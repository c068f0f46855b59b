package main

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/illmade-knight/go-storebridge/pkg/bridge"
	"github.com/illmade-knight/go-storebridge/pkg/cache"
	"github.com/illmade-knight/go-storebridge/pkg/config"
	"github.com/illmade-knight/go-storebridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-storebridge/pkg/mqttconverter"
	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/illmade-knight/go-storebridge/pkg/storage/cdmi"
	"github.com/illmade-knight/go-storebridge/pkg/storage/gcs"
	"github.com/illmade-knight/go-storebridge/pkg/storage/memstore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const memoryEndpoint = "memory://storebridge"

// gcsUser names the session user for bucket access through application
// default credentials.
const gcsUser = "application-default"

// storageEndpoint is the endpoint a stored session must match.
func storageEndpoint(cfg *config.Config) string {
	switch cfg.Storage.Kind {
	case config.StorageGCS:
		return gcs.Endpoint(gcsConfig(cfg))
	case config.StorageMemory:
		return memoryEndpoint
	default:
		return cfg.Storage.CDMI.BaseURL()
	}
}

func gcsConfig(cfg *config.Config) gcs.Config {
	return gcs.Config{BucketName: cfg.Storage.GCS.Bucket, ObjectPrefix: cfg.Storage.GCS.Prefix}
}

func storageCredentials(cfg *config.Config) bridge.Credentials {
	if cfg.Storage.Kind == config.StorageGCS {
		return bridge.Credentials{User: gcsUser}
	}
	return bridge.Credentials{User: cfg.Storage.CDMI.User, Password: cfg.Storage.CDMI.Password}
}

func clientOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

// buildStorage returns the client factory for the configured backend and a
// function releasing what it holds.
func buildStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Factory, func(), error) {
	switch cfg.Storage.Kind {
	case config.StorageCDMI:
		return cdmi.NewFactory(cdmi.Config{
			APIPath: cfg.Storage.CDMI.APIPath,
			Timeout: cfg.Storage.CDMI.Timeout,
		}, logger), func() {}, nil

	case config.StorageGCS:
		gcsClient, err := cloudstorage.NewClient(ctx, clientOptions(cfg.Storage.GCS.CredentialsFile)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		closeFn := func() {
			if err := gcsClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close GCS client.")
			}
		}
		return gcs.NewFactory(gcs.NewGCSClientAdapter(gcsClient), gcsConfig(cfg), logger), closeFn, nil

	case config.StorageMemory:
		logger.Warn().Msg("Using in-memory storage, objects are lost on exit.")
		return memstore.NewBackend().Factory(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage kind %q", cfg.Storage.Kind)
	}
}

// buildSessionStore opens the configured session persistence. The returned
// function closes the store and any client behind it.
func buildSessionStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache[string, cache.Entry], func(), error) {
	switch cfg.Session.Kind {
	case config.SessionFile:
		store, err := cache.NewFileCache(cfg.Session.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.SessionRedis:
		r := cfg.Session.Redis
		store, err := cache.NewRedisCache[string, cache.Entry](ctx, &cache.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
			CacheTTL:  r.TTL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.SessionFirestore:
		fs := cfg.Session.Firestore
		client, err := firestore.NewClient(ctx, fs.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		store, err := cache.NewFirestoreSource[string, cache.Entry](&cache.FirestoreConfig{
			ProjectID:      fs.ProjectID,
			CollectionName: fs.Collection,
		}, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() {
			_ = store.Close()
			_ = client.Close()
		}, nil

	case config.SessionMemory:
		logger.Warn().Msg("Using in-memory session store, the session is not kept across restarts.")
		return cache.NewInMemoryCache[string, cache.Entry](), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown session kind %q", cfg.Session.Kind)
	}
}

// buildConsumer creates the message source. Pub/Sub publishers are expected
// to carry the original MQTT topic in the mqtt_topic attribute.
func buildConsumer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (messagepipeline.MessageConsumer, func(), error) {
	switch cfg.Transport.Kind {
	case config.TransportMQTT:
		m := cfg.Transport.MQTT
		mqttCfg := mqttconverter.LoadMQTTClientConfigFromEnv()
		mqttCfg.BrokerURL = m.BrokerURL()
		mqttCfg.Topic = m.Topic
		mqttCfg.Username = m.User
		mqttCfg.Password = m.Password
		mqttCfg.AllowPublicBroker = m.AllowAnonymous
		if m.ClientIDPrefix != "" {
			mqttCfg.ClientIDPrefix = m.ClientIDPrefix
		}
		consumer, err := mqttconverter.NewMqttConsumer(nil, mqttCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return consumer, func() {}, nil

	case config.TransportPubSub:
		p := cfg.Transport.PubSub
		client, err := pubsub.NewClient(ctx, p.ProjectID, clientOptions(p.CredentialsFile)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
		}
		consumerCfg := messagepipeline.NewGooglePubsubConsumerDefaults(p.SubscriptionID)
		consumerCfg.ProjectID = p.ProjectID
		consumerCfg.CredentialsFile = p.CredentialsFile
		consumer, err := messagepipeline.NewGooglePubsubConsumer(consumerCfg, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return consumer, func() { _ = client.Close() }, nil

	default:
		return nil, nil, errors.New("unknown transport kind " + cfg.Transport.Kind)
	}
}
