package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kaushals112/shadow-aiims-defender/internal/aggregator"
	"github.com/Kaushals112/shadow-aiims-defender/internal/bucketing"
	"github.com/Kaushals112/shadow-aiims-defender/internal/client"
	"github.com/Kaushals112/shadow-aiims-defender/internal/config"
	"github.com/Kaushals112/shadow-aiims-defender/internal/encryption"
	"github.com/Kaushals112/shadow-aiims-defender/internal/hashing"
	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/recorder"
	chrepo "github.com/Kaushals112/shadow-aiims-defender/internal/repository/clickhouse"
	redisrepo "github.com/Kaushals112/shadow-aiims-defender/internal/repository/redis"
	"github.com/Kaushals112/shadow-aiims-defender/internal/repository/scylla"
	"github.com/Kaushals112/shadow-aiims-defender/internal/service"
	"github.com/Kaushals112/shadow-aiims-defender/internal/session"
	"github.com/Kaushals112/shadow-aiims-defender/internal/tls"
	"github.com/Kaushals112/shadow-aiims-defender/internal/token"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaPublisher   *client.KafkaPublisher
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Repositories
	sessionCache   *redisrepo.SessionCache
	sessionArchive *scylla.SessionArchive
	eventArchive   *chrepo.EventArchive
	attemptWindow  *redisrepo.AttemptWindow

	// Core
	eventStore    recorder.EventStore
	fileStore     *recorder.FileStore
	eventRecorder *recorder.Recorder
	tracker       *session.Tracker
	issuer        *token.Issuer
	decoyService  *service.DecoyService
	aggregator    *aggregator.Aggregator
	mirrors       []service.SessionMirror

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	if err := factory.initializeCore(); err != nil {
		return nil, fmt.Errorf("failed to initialize core components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("redis_enabled", cfg.Redis.Enabled),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.Clickhouse.Enabled),
		util.Bool("elasticsearch_enabled", cfg.Elasticsearch.Enabled),
		util.Bool("scylla_enabled", cfg.Scylla.Enabled),
	)

	return factory, nil
}

// initializeClients brings up the optional backends. The decoy keeps
// running without any of them; only production treats an enabled backend
// that fails its health check as fatal.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled {
		if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = rc
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				util.Info("Redis client initialized and healthy")
			}
		}
	}

	if f.config.Scylla.Enabled {
		if sc, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = sc
			if err := f.scyllaClient.HealthCheck(); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			} else {
				util.Info("ScyllaDB client initialized and healthy")
			}
		}
	}

	if f.config.Kafka.Enabled {
		if publisher, err := client.NewKafkaPublisher(f.config, util.Get()); err != nil {
			util.Warn("Kafka publisher initialization failed, proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaPublisher = publisher
			util.Info("Kafka publisher initialized")
		}
	}

	if f.config.Elasticsearch.Enabled {
		if es, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = es
			if err := f.esClient.HealthCheck(); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	if f.config.Clickhouse.Enabled {
		if ch, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = ch
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else if err := f.clickhouseClient.Exec(ctx, chrepo.CreateTableDDL); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse schema: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing.
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher()

	encryptionManager, err := encryption.NewManager(f.config, util.Get())
	if err != nil {
		util.Warn("Encryption manager unavailable, archived payloads stay plaintext", util.ErrorField(err))
	}
	f.encryptionManager = encryptionManager

	f.bucketingManager = bucketing.NewManager(bucketing.DefaultEventBuckets)
}

// initializeCore wires the tracker, recorder, token issuer, decoy service,
// and the monitoring aggregator over whichever backends came up.
func (f *Factory) initializeCore() error {
	cfg := f.config

	if cfg.Storage.EventLogPath != "" {
		fileStore, err := recorder.NewFileStore(cfg.Storage.EventLogPath)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		f.fileStore = fileStore
		f.eventStore = fileStore
		util.Info("Event log opened", util.String("path", cfg.Storage.EventLogPath))
	} else {
		f.eventStore = recorder.NewMemoryStore()
	}

	var sinks []recorder.Sink
	if f.kafkaPublisher != nil {
		sinks = append(sinks, f.kafkaPublisher)
	}
	if f.esClient != nil {
		sinks = append(sinks, f.esClient)
	}
	if f.clickhouseClient != nil {
		f.eventArchive = chrepo.NewEventArchive(f.clickhouseClient, f.bucketingManager, f.encryptionManager, util.Get())
		sinks = append(sinks, f.eventArchive)
	}
	f.eventRecorder = recorder.New(f.eventStore, util.Get(), sinks...)

	f.tracker = session.NewTracker(cfg.Session.Timeout, util.Get())
	f.tracker.ConfigureAttemptWindow(cfg.Session.AttemptWindow)

	f.issuer = token.NewIssuer(token.WithValidity(cfg.Token.Validity))

	if f.redisClient != nil {
		f.sessionCache = redisrepo.NewSessionCache(f.redisClient, 0)
		f.attemptWindow = redisrepo.NewAttemptWindow(f.redisClient, cfg.Session.AttemptWindow)
		f.mirrors = append(f.mirrors, f.sessionCache)
	}
	if f.scyllaClient != nil {
		f.sessionArchive = scylla.NewSessionArchive(f.scyllaClient)
		f.mirrors = append(f.mirrors, f.sessionArchive)
	}

	f.decoyService = service.NewDecoyService(
		f.tracker,
		f.eventRecorder,
		f.issuer,
		f.hasher,
		cfg.Session.AttemptThreshold,
		util.Get(),
		f.mirrors...,
	)
	if f.attemptWindow != nil {
		f.decoyService.UseAttemptCounter(f.attemptWindow)
	}

	f.aggregator = aggregator.New(f.eventStore, f.tracker)

	return nil
}

func (f *Factory) Config() *config.Config { return f.config }

func (f *Factory) TLSManager() *tls.TLSManager { return f.tlsManager }

func (f *Factory) DecoyService() *service.DecoyService { return f.decoyService }

func (f *Factory) Aggregator() *aggregator.Aggregator { return f.aggregator }

func (f *Factory) Tracker() *session.Tracker { return f.tracker }

func (f *Factory) Recorder() *recorder.Recorder { return f.eventRecorder }

// SweepSessions expires idle sessions and pushes the newly expired records
// to the session mirrors.
func (f *Factory) SweepSessions(ctx context.Context, now time.Time) int {
	expired := f.tracker.Sweep(ctx, now)
	if expired == 0 || len(f.mirrors) == 0 {
		return expired
	}
	for _, rec := range f.tracker.All() {
		if rec.Status != models.SessionExpired {
			continue
		}
		for _, m := range f.mirrors {
			if err := m.MirrorSession(ctx, rec); err != nil {
				util.Warn("session mirror failed during sweep",
					util.String("session_id", rec.SessionID),
					util.ErrorField(err))
			}
		}
	}
	return expired
}

// HealthCheck reports per-backend status for enabled backends only.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.Redis.Enabled {
		if f.redisClient == nil {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		} else if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.config.Scylla.Enabled {
		if f.scyllaClient == nil {
			healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
		} else if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	}

	if f.config.Elasticsearch.Enabled {
		if f.esClient == nil {
			healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
		} else if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.config.Clickhouse.Enabled {
		if f.clickhouseClient == nil {
			healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
		} else if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaPublisher != nil {
			if err := f.kafkaPublisher.Close(); err != nil {
				util.Error("Failed to close Kafka publisher", util.ErrorField(err))
			} else {
				util.Info("Kafka publisher closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.fileStore != nil {
			if err := f.fileStore.Close(); err != nil {
				util.Error("Failed to close event log", util.ErrorField(err))
			} else {
				util.Info("Event log closed")
			}
		}

		util.Sync()
	})
	return nil
}
