// Package bootstrap assembles the client-side dependencies from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"execal-client/internal/execal"
	"execal-client/internal/ledger"
	"execal-client/internal/queue"
	"execal-client/internal/reportsync"
	"execal-client/internal/shared/config"
	"execal-client/internal/shared/storage/db"
	"execal-client/internal/shared/storage/object"
	localstore "execal-client/internal/shared/storage/object/local"
	miniostore "execal-client/internal/shared/storage/object/minio"
	s3store "execal-client/internal/shared/storage/object/s3"
	"execal-client/internal/transport"
	"execal-client/internal/workflow"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Client *execal.Client
	Store  object.Store
	DB     *sql.DB
	Ledger ledger.Repo
	// Queue is nil when no queue URL is configured.
	Queue  queue.Client
	Syncer *reportsync.Syncer
}

// Build prepares dependencies for a process of the given profile.
func Build(ctx context.Context, cfg config.Config, profile db.Profile) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	client, err := execal.NewHTTP(cfg.APIBase, transport.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	store, err := BuildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := buildDB(ctx, cfg, profile)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Client: client,
		Store:  store,
		DB:     sqlDB,
		Queue:  queueClient,
	}
	if sqlDB != nil {
		app.Ledger = &ledger.PGRepo{DB: sqlDB}
	} else {
		app.Ledger = ledger.NewMemoryRepo()
	}
	app.Syncer = &reportsync.Syncer{
		Client: client,
		Token:  cfg.Token,
		Store:  store,
		Ledger: app.Ledger,
	}
	return app, nil
}

// Workflow returns a workflow wired to the app's ledger, notifier and owner.
func (a *App) Workflow(opts ...workflow.Option) *workflow.Workflow {
	base := []workflow.Option{
		workflow.WithLedger(a.Ledger),
		workflow.WithOwner(a.Config.Owner),
	}
	if a.Queue != nil {
		base = append(base, workflow.WithNotifier(a.Queue))
	}
	return workflow.New(a.Client, append(base, opts...)...)
}

// Close releases the database pool. Shared Lambda pools are left open.
func (a *App) Close() error {
	if a == nil || a.DB == nil || db.IsLambdaRuntime() {
		return nil
	}
	return a.DB.Close()
}

// BuildStore selects the object store named by cfg.ObjectStoreType.
func BuildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(ctx, miniostore.Options{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildDB(ctx context.Context, cfg config.Config, profile db.Profile) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("bootstrap: DATABASE_URL empty; using in-memory ledger")
		return nil, nil
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	opts := db.OptionsFromEnv(db.DefaultOptions(profile))
	if profile == db.ProfileLambda {
		sqlDB, err = db.Shared(ctx, cfg.DatabaseURL, opts)
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory ledger: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			log.Printf("bootstrap: migrations failed; using in-memory ledger: %v", err)
			_ = sqlDB.Close()
			return nil, nil
		}
	}
	return sqlDB, nil
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	client, err := queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
