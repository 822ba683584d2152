// main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	ledgerapi "github.com/Ftotnem/POINTS-LEDGER/ledger/api"
	"github.com/Ftotnem/POINTS-LEDGER/ledger/identity"
	"github.com/Ftotnem/POINTS-LEDGER/ledger/reconciler"
	"github.com/Ftotnem/POINTS-LEDGER/ledger/service"
	"github.com/Ftotnem/POINTS-LEDGER/ledger/store"
	"github.com/Ftotnem/POINTS-LEDGER/shared/api"
	"github.com/Ftotnem/POINTS-LEDGER/shared/cluster"
	"github.com/Ftotnem/POINTS-LEDGER/shared/config"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	mongodbu "github.com/Ftotnem/POINTS-LEDGER/shared/mongodb"
	redisu "github.com/Ftotnem/POINTS-LEDGER/shared/redis"
	"github.com/Ftotnem/POINTS-LEDGER/shared/registry"
	"github.com/Ftotnem/POINTS-LEDGER/shared/retry"
)

const (
	serviceType    = "ledger-service"
	serviceVersion = "1.0.0"
)

func main() {
	// --- 1. Load Configuration ---
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment only")
	}
	cfg, err := config.LoadLedgerServiceConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New(serviceType, cfg.Environment, cfg.LogLevel)

	// --- 2. Connect to MongoDB ---
	mongoClient, err := mongodbu.NewClient(cfg.MongoDBConnStr, cfg.MongoDBDatabase, log.Entry)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.WithError(err).Error("Failed to disconnect from MongoDB")
			return
		}
		log.Info("Disconnected from MongoDB")
	}()

	// --- 3. Connect to Redis ---
	redisClient, err := redisu.NewRedisClient(cfg.RedisAddrs, cfg.RedisPassword)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Error("Error closing Redis client")
			return
		}
		log.Info("Redis client closed")
	}()

	// --- 4. Initialize Data Stores ---
	teamStore := store.NewTeamStore(mongoClient.Collection(cfg.MongoDBTeamsCollection), log)
	transactionStore := store.NewTransactionStore(mongoClient.Collection(cfg.MongoDBTransactionsCollection))
	adminStore := store.NewAdminStore(mongoClient.Collection(cfg.MongoDBAdminsCollection))
	sessionStore := store.NewSessionStore(redisClient, cfg.SessionTTL)
	leaderboardCache := store.NewLeaderboardCache(redisClient, cfg.LeaderboardCacheTTL)

	var writer service.AdjustmentWriter
	if cfg.MongoDBTransactionsEnabled {
		writer = store.NewTransactionalWriter(mongoClient.RawClient(), teamStore, transactionStore)
	} else {
		log.Warn("MongoDB transactions disabled, adjustments use compensating writes")
		writer = store.NewCompensatingWriter(teamStore, transactionStore, log)
	}

	// --- 5. Ensure Indexes and Initial Data Exist ---
	setupCtx, setupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := teamStore.EnsureIndexes(setupCtx); err != nil {
		log.WithError(err).Fatal("Failed to ensure team indexes")
	}
	if err := transactionStore.EnsureIndexes(setupCtx); err != nil {
		log.WithError(err).Fatal("Failed to ensure transaction indexes")
	}
	if err := teamStore.EnsureTeamsExist(setupCtx, cfg.DefaultTeams); err != nil {
		log.WithError(err).Fatal("Failed to ensure default teams exist")
	}
	setupCancel()

	// --- 6. Initialize Business Logic Services ---
	reads := retry.DefaultPolicy(cfg.RetryMaxElapsed)
	identityProvider := identity.NewProvider(cfg.IdentityBaseURL, cfg.IdentityAPIKey, api.NewDefaultHTTPClient())

	accessService := service.NewAccessService(adminStore, teamStore, reads, log)
	leaderboardService := service.NewLeaderboardService(teamStore, leaderboardCache, reads, log)
	ledgerService := service.NewLedgerService(teamStore, transactionStore, writer, accessService, leaderboardService, reads, log)
	authService := service.NewAuthService(identityProvider, sessionStore, log)

	// --- 7. Initialize and Start Service Registrar ---
	registrar := registry.NewServiceRegistrar(redisClient, serviceType, serviceVersion, &cfg.CommonConfig, log)
	go registrar.Start()
	defer registrar.Stop()

	registryClient := registry.NewRegistryClient(redisClient, cfg.HeartbeatTTL)
	assignments := cluster.NewAssignmentManager(registryClient, serviceType, registrar.GetServiceID(), cfg.HeartbeatInterval, log)
	go assignments.Start()
	defer assignments.Stop()

	// --- 8. Start the Reconciler ---
	ledgerReconciler := reconciler.NewLedgerReconciler(teamStore, transactionStore, leaderboardService, assignments, cfg.ReconcileInterval, cfg.ReconcileRepair, log)
	if !cfg.MongoDBTransactionsEnabled {
		ledgerReconciler.DisableRepair()
	}
	if cfg.ReconcileInterval > 0 {
		go ledgerReconciler.Start()
		defer ledgerReconciler.Stop()
	} else {
		log.Info("Periodic reconcile disabled")
	}

	// --- 9. Setup HTTP Server and Register Routes ---
	handlers := ledgerapi.NewLedgerAPIHandlers(ledgerService, accessService, leaderboardService, authService, ledgerapi.Options{
		ServiceType:    serviceType,
		RequestTimeout: cfg.RequestTimeout,
		SignInRate:     cfg.SignInRatePerSecond,
		SignInBurst:    cfg.SignInBurst,
	}, log)
	handlers.Reconciler = ledgerReconciler
	handlers.Instances = registryClient

	baseServer := api.NewBaseServer(cfg.ListenAddr, log)
	handlers.RegisterRoutes(baseServer.Router)

	// --- 10. Start HTTP Server ---
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("HTTP server starting")
		if err := baseServer.Start(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed to start")
		}
	}()

	// --- 11. Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := baseServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server graceful shutdown failed")
		return
	}
	log.Info("Server gracefully stopped")
}
