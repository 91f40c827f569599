// Package container is the composition root: it wires config into
// infrastructure clients, infrastructure into repositories, repositories
// and security primitives into services, and services into the HTTP
// gate and background workers. Nothing outside this package constructs
// more than one of these pieces at a time.
package container

import (
	"context"
	"fmt"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ammonsd/activitytracking-core/pkg/auth"
	"github.com/ammonsd/activitytracking-core/pkg/bootstrap"
	"github.com/ammonsd/activitytracking-core/pkg/config"
	"github.com/ammonsd/activitytracking-core/pkg/expense"
	"github.com/ammonsd/activitytracking-core/pkg/fsx"
	"github.com/ammonsd/activitytracking-core/pkg/fsx/fsxlocal"
	"github.com/ammonsd/activitytracking-core/pkg/fsx/fsxs3"
	"github.com/ammonsd/activitytracking-core/pkg/gate"
	"github.com/ammonsd/activitytracking-core/pkg/jobx"
	"github.com/ammonsd/activitytracking-core/pkg/jobx/jobxredis"
	"github.com/ammonsd/activitytracking-core/pkg/logx"
	"github.com/ammonsd/activitytracking-core/pkg/notifx"
	"github.com/ammonsd/activitytracking-core/pkg/notifx/notifxconsole"
	"github.com/ammonsd/activitytracking-core/pkg/notifx/notifxses"
	"github.com/ammonsd/activitytracking-core/pkg/notify"
	"github.com/ammonsd/activitytracking-core/pkg/scheduler"
	"github.com/ammonsd/activitytracking-core/pkg/security/password"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/security/token"
	"github.com/ammonsd/activitytracking-core/pkg/store"
)

// Container holds every long-lived object the HTTP server and background
// workers need for the lifetime of the process.
type Container struct {
	Config *config.Config

	DB         *sqlx.DB
	Redis      *redis.Client
	FileSystem fsx.FileSystem

	Users            *store.PostgresUserRepository
	Revocations      *store.PostgresRevocationRepository
	Roles            *store.PostgresRoleRepository
	PasswordHistory  *store.PostgresPasswordHistoryRepository
	Expenses         *store.PostgresExpenseRepository

	Hasher    *password.Hasher
	Policy    password.Policy
	Codec     *token.Codec
	Evaluator *rbac.Evaluator

	Jobs       *jobx.Client
	Mail       *notifx.Client
	Dispatcher *notify.Dispatcher

	AuthService    *auth.Service
	ExpenseService *expense.Service

	Scheduler *scheduler.Scheduler
	Gate      *gate.Gate
	Limiter   *gate.RateLimiter
}

// New assembles a Container from cfg. It connects to every infrastructure
// dependency (Postgres, Redis, and either local disk or S3) but does not
// start any background goroutine or accept any request — callers decide
// when to call Run via bootstrap.Run and Start via StartBackground.
func New(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	if err := c.initInfrastructure(); err != nil {
		return nil, err
	}
	c.initRepositories()
	if err := c.initSecurity(); err != nil {
		return nil, err
	}
	if err := c.initNotifications(); err != nil {
		return nil, err
	}
	c.initServices()
	c.initScheduler()
	c.initGate()

	return c, nil
}

func (c *Container) initInfrastructure() error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Config.Database.Host, c.Config.Database.Port, c.Config.Database.User,
		c.Config.Database.Password, c.Config.Database.Name, c.Config.Database.SSLMode)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return fmt.Errorf("container: failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		return fmt.Errorf("container: failed to connect to redis: %w", err)
	}

	switch c.Config.Storage.Mode {
	case "s3":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfig.WithRegion(c.Config.Storage.S3Region))
		if err != nil {
			return fmt.Errorf("container: failed to load aws config: %w", err)
		}
		c.FileSystem = fsxs3.NewS3FileSystem(s3.NewFromConfig(awsCfg), c.Config.Storage.S3Bucket, "")
	case "local":
		localFS, err := fsxlocal.NewLocalFileSystem(c.Config.Storage.LocalDir)
		if err != nil {
			return fmt.Errorf("container: failed to initialize local file system: %w", err)
		}
		c.FileSystem = localFS
	default:
		return fmt.Errorf("container: unknown storage mode %q", c.Config.Storage.Mode)
	}

	return nil
}

func (c *Container) initRepositories() {
	c.Users = store.NewPostgresUserRepository(c.DB)
	c.Revocations = store.NewPostgresRevocationRepository(c.DB)
	c.Roles = store.NewPostgresRoleRepository(c.DB)
	c.PasswordHistory = store.NewPostgresPasswordHistoryRepository(c.DB)
	c.Expenses = store.NewPostgresExpenseRepository(c.DB)
}

func (c *Container) initSecurity() error {
	c.Hasher = password.NewHasher(c.Config.Auth.Password.BcryptCost)
	c.Policy = password.NewPolicy(c.Config.Auth.Password.MinLength, c.Config.Auth.Password.HistoryLimit)

	codec, err := token.NewCodec(
		c.Config.Auth.JWT.SigningSecret,
		c.Config.Auth.JWT.Issuer,
		c.Config.Auth.JWT.AccessTokenTTL,
		c.Config.Auth.JWT.RefreshTokenTTL,
		c.Config.Auth.JWT.ServiceAccountTTL,
	)
	if err != nil {
		return fmt.Errorf("container: failed to construct token codec: %w", err)
	}
	c.Codec = codec

	c.Evaluator = rbac.NewEvaluator(c.Roles)
	return nil
}

func (c *Container) initNotifications() error {
	c.Jobs = jobx.NewClient(
		jobxredis.NewRedisQueue(c.Redis),
		jobx.WithConcurrency(c.Config.Jobx.Concurrency),
		jobx.WithQueues(append(c.Config.Jobx.Queues, notify.QueueName)...),
		jobx.WithPollInterval(c.Config.Jobx.PollInterval),
		jobx.WithShutdownTimeout(c.Config.Jobx.ShutdownTimeout),
		jobx.WithDequeueTimeout(c.Config.Jobx.DequeueTimeout),
	)

	switch c.Config.Notifx.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfig.WithRegion(c.Config.Notifx.AWSRegion))
		if err != nil {
			return fmt.Errorf("container: failed to load aws config for ses: %w", err)
		}
		c.Mail = notifx.NewClient(notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), c.Config.Notifx.FromAddress))
	default:
		c.Mail = notifx.NewClient(notifxconsole.NewConsoleProvider())
	}

	if err := notify.RegisterTemplates(c.Mail); err != nil {
		return fmt.Errorf("container: failed to register notification templates: %w", err)
	}
	notify.RegisterWorker(c.Jobs, c.Mail, c.Config.Notifx.FromAddress)

	c.Dispatcher = notify.NewDispatcher(c.Jobs, c.Users, c.Config.Notifx.FromAddress, adminRecipients(c.Config))
	return nil
}

// adminRecipients is the expense-approver/security notice audience: the
// bootstrap admin's mailbox only, or no recipients when it is unset.
func adminRecipients(cfg *config.Config) []string {
	if cfg.Bootstrap.AdminEmail == "" {
		return nil
	}
	return []string{cfg.Bootstrap.AdminEmail}
}

func (c *Container) initServices() {
	c.AuthService = auth.NewService(
		c.Users, c.Revocations, c.PasswordHistory, c.Codec, c.Hasher, c.Policy, c.Evaluator,
		c.Config.Auth.Password.ExpirationPeriod,
	)
	c.ExpenseService = expense.NewService(c.Expenses, c.Dispatcher)
}

func (c *Container) initScheduler() {
	var lease scheduler.LeaseAcquirer
	c.Scheduler = scheduler.New(c.Users, c.Revocations, c.Dispatcher, lease)
}

func (c *Container) initGate() {
	if c.Config.Auth.RateLimit.Enabled {
		c.Limiter = gate.NewRateLimiter(c.Config.Auth.RateLimit.Capacity, c.Config.Auth.RateLimit.RefillPerMinute)
	}
	c.Gate = gate.NewGate(c.Codec, c.Users, c.Revocations, c.Evaluator, c.Limiter)
}

// RunBootstrap establishes the process's startup invariants: signing
// secret strength, admin bootstrap password presence, reference-data
// seeding, and admin user provisioning. Call before StartBackground.
func (c *Container) RunBootstrap(ctx context.Context) error {
	return bootstrap.Run(ctx, bootstrap.Options{
		SigningSecret:      c.Config.Auth.JWT.SigningSecret,
		AdminUsername:      c.Config.Bootstrap.AdminUsername,
		AdminPassword:      c.Config.Bootstrap.AdminPassword,
		AdminEmail:         c.Config.Bootstrap.AdminEmail,
		PasswordExpiration: c.Config.Auth.Password.ExpirationPeriod,
	}, c.Roles, c.Users, c.Hasher)
}

// StartBackground starts the job worker and, if enabled, the Scheduler.
// Call once, after RunBootstrap succeeds. Jobs.Start blocks processing
// jobs until ctx is cancelled, so it runs on its own goroutine; a failure
// there is logged rather than returned since the caller has already moved
// on to serving requests.
func (c *Container) StartBackground(ctx context.Context) error {
	go func() {
		if err := c.Jobs.Start(ctx); err != nil {
			logx.WithError(err).Error("container: job worker stopped")
		}
	}()
	if c.Config.Scheduler.Enabled {
		if err := c.Scheduler.Start(c.Config.Scheduler.PasswordScanCron, c.Config.Scheduler.RevocationGCInterval); err != nil {
			return fmt.Errorf("container: failed to start scheduler: %w", err)
		}
	}
	return nil
}

// Cleanup releases infrastructure connections. Call on shutdown.
func (c *Container) Cleanup() {
	if c.Config.Scheduler.Enabled && c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.WithError(err).Error("container: error closing database")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.WithError(err).Error("container: error closing redis")
		}
	}
}
