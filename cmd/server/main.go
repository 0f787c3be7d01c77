package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seminar_standings/internal/api"
	"seminar_standings/internal/app/service"
	"seminar_standings/internal/app/worker"
	"seminar_standings/internal/common/security"
	"seminar_standings/internal/domain/repository"
	"seminar_standings/internal/platform/cache"
	"seminar_standings/internal/platform/config"
	"seminar_standings/internal/platform/database"
	"seminar_standings/internal/rules"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Check every registered policy before serving anything
	if err := rules.ValidateRegistry(); err != nil {
		log.Fatalf("Invalid policy registry: %v", err)
	}
	fmt.Printf("Policies registered: %v\n", rules.RegisteredPolicies())

	// 3. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 4. Initialize Database
	database.Connect()
	defer database.Close()
	fmt.Println("Database connected.")

	// 5. Initialize Repositories
	repos := rules.Repositories{
		Rounds:      repository.NewSQLRoundRepository(database.DB),
		Enrollments: repository.NewSQLEnrollmentRepository(database.DB),
		Submissions: repository.NewSQLSubmissionRepository(database.DB),
		PolicyData:  repository.NewSQLPolicyDataRepository(database.DB),
		Roles:       repository.NewSQLContestRoleRepository(database.DB),
	}
	frozenRepo := repository.NewSQLFrozenTableRepository(database.DB)

	// 6. Initialize Cache (Redis unless CACHE_DRIVER=memory)
	var tableCache service.TableCache
	useRedis := config.AppConfig.CacheDriver != "memory"
	if useRedis {
		cache.ConnectRedis()
		defer cache.CloseRedis()
		tableCache = cache.NewRedisTableCache(cache.RDB)
		fmt.Println("Redis connected.")
	} else {
		tableCache = cache.NewMemoryTableCache()
		fmt.Println("Using in-process table cache.")
	}

	// 7. Initialize Services
	standingsService := service.NewStandingsService(repos, frozenRepo, tableCache, database.DB, service.StandingsConfig{
		CacheTTL:      config.AppConfig.ResultsCacheTTL(),
		BuildLockTTL:  config.AppConfig.BuildLockTTL(),
		MaxChainDepth: config.AppConfig.CarryOverMaxDepth,
	})

	// 8. Initialize Close Worker (as a goroutine)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var closer service.RoundCloser = service.InlineCloser{Standings: standingsService}
	if useRedis {
		closer = service.NewCloseJobService(repos.Rounds, cache.RDB, config.AppConfig.CloseQueueName)
		closeWorker := worker.NewCloseWorker(cache.RDB, standingsService,
			config.AppConfig.CloseQueueName, config.AppConfig.CloseLockKeyPrefix, config.AppConfig.CloseLockTTL())
		go closeWorker.Start(workerCtx)
		fmt.Println("Close worker started.")
	}

	// 9. Initialize Router & HTTP Server
	router := api.NewRouter(standingsService, closer)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop

	log.Println("Shutting down server...")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and worker stopped gracefully.")
}
