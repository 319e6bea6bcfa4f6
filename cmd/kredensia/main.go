// Command kredensia runs the credential-management API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/kredensia/kredensia/pkg/api"
	"github.com/kredensia/kredensia/pkg/config"
	"github.com/kredensia/kredensia/pkg/credentials"
	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/identity/mongostore"
	"github.com/kredensia/kredensia/pkg/observability"
	"github.com/kredensia/kredensia/pkg/questions"
	"github.com/kredensia/kredensia/pkg/token"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence backends.
	var (
		userStore       identity.Store
		credentialStore credentials.Store
		questionStore   questions.Store
	)
	switch cfg.Store.Type {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.MongoTimeout)
		defer cancel()

		client, err := mongo.Connect(connectCtx, mongooptions.Client().ApplyURI(cfg.Store.MongoURI))
		if err != nil {
			return err
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			return err
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.WithError(err).Warn("mongo disconnect failed")
			}
		}()

		db := client.Database(cfg.Store.MongoDatabase)
		userStore, err = mongostore.New(connectCtx, db)
		if err != nil {
			return err
		}
		credentialStore, err = credentials.NewMongoStore(connectCtx, db)
		if err != nil {
			return err
		}
		questionStore, err = questions.NewMongoStore(connectCtx, db)
		if err != nil {
			return err
		}
		log.WithField("database", cfg.Store.MongoDatabase).Info("connected to mongo")
	case "memory":
		userStore = identity.NewMemoryStore()
		credentialStore = credentials.NewMemoryStore()
		questionStore = questions.NewMemoryStore()
		log.Warn("using in-memory stores, data will not survive a restart")
	}

	// Token revocation set: redis when configured, in-process otherwise.
	var revocations token.RevocationStore
	if cfg.Store.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		defer client.Close()
		revocations = token.NewRedisRevocations(client)
		log.Info("using redis-backed token revocation set")
	} else {
		revocations = token.NewMemoryRevocations()
	}

	users := identity.NewService(userStore,
		identity.WithBcryptCost(cfg.Auth.BcryptCost),
		identity.WithLogger(log),
	)
	issuer := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, revocations)

	if cfg.Auth.SeedPath != "" {
		created, err := users.SeedFromFile(ctx, cfg.Auth.SeedPath)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"path": cfg.Auth.SeedPath, "created": created}).Info("seed file applied")
	}

	server := api.NewServer(api.Options{
		Users:       users,
		Issuer:      issuer,
		Credentials: credentials.NewService(credentialStore, credentials.WithLogger(log)),
		Questions:   questions.NewService(questionStore),
		Log:         log,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	server.StartBackground(ctx)

	// Maintenance jobs.
	jobs := cron.New()
	if _, err := jobs.AddFunc(cfg.Jobs.RevocationSweep, func() {
		removed, err := revocations.Sweep(context.Background())
		if err != nil {
			log.WithError(err).Error("revocation sweep failed")
			return
		}
		if count, err := revocations.ActiveCount(context.Background()); err == nil {
			observability.SetRevokedTokens(count)
		}
		if removed > 0 {
			log.WithField("removed", removed).Info("revocation sweep completed")
		}
	}); err != nil {
		return err
	}
	if _, err := jobs.AddFunc(cfg.Jobs.NPKRepair, func() {
		repaired, err := users.GenerateMissingNPKs(context.Background())
		if err != nil {
			log.WithError(err).Error("npk repair failed")
			return
		}
		if repaired > 0 {
			log.WithField("repaired", repaired).Info("npk repair completed")
		}
	}); err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	metricsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.MetricsPort,
		Handler: observability.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", metricsServer.Addr).Info("metrics server listening")
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := apiServer.Shutdown(shutdownCtx)
		if merr := metricsServer.Shutdown(shutdownCtx); err == nil {
			err = merr
		}
		return err
	})

	return g.Wait()
}
