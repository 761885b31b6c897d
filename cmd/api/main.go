package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/campusforge/grading-api/internal/config"
	"github.com/campusforge/grading-api/internal/database"
	"github.com/campusforge/grading-api/internal/handler"
	"github.com/campusforge/grading-api/internal/middleware"
	"github.com/campusforge/grading-api/internal/models"
	"github.com/campusforge/grading-api/internal/repository"
	"github.com/campusforge/grading-api/internal/router"
	"github.com/campusforge/grading-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Exercise{},
		&models.TestCase{},
		&models.StaticCodeAnalysisCategory{},
		&models.Participation{},
		&models.Submission{},
		&models.Result{},
		&models.Feedback{},
		&models.LongFeedbackText{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	defer natsConn.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	exerciseRepo := repository.NewExerciseRepository(db)
	testCaseRepo := repository.NewTestCaseRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	participationRepo := repository.NewParticipationRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	resultRepo := repository.NewResultRepository(db)

	notifierCtx, stopNotifier := context.WithCancel(context.Background())
	defer stopNotifier()

	notifier := service.NewGradingNotifier(redisClient, "grading", natsConn, logger)
	notifier.Start(notifierCtx)

	testCaseService := service.NewTestCaseService(exerciseRepo, testCaseRepo, validate, notifier, logger)
	categoryService := service.NewCategoryService(exerciseRepo, categoryRepo, validate, notifier, logger)
	gradingService := service.NewGradingService(exerciseRepo, participationRepo, submissionRepo, resultRepo, notifier, redisClient, cfg.StatisticsCacheTTL, cfg.ScoreRoundingPlaces, logger)
	assessmentService := service.NewAssessmentService(exerciseRepo, participationRepo, submissionRepo, resultRepo, validate, notifier, cfg.ScoreRoundingPlaces, logger)
	reevaluationService := service.NewReevaluationService(exerciseRepo, participationRepo, submissionRepo, resultRepo, notifier, cfg.ReevalWorkers, cfg.ScoreRoundingPlaces, logger)

	testCaseHandler := handler.NewTestCaseHandler(testCaseService, logger)
	categoryHandler := handler.NewCategoryHandler(categoryService, logger)
	gradingHandler := handler.NewGradingHandler(gradingService, reevaluationService, logger)
	assessmentHandler := handler.NewAssessmentHandler(assessmentService, logger)
	resultHandler := handler.NewResultHandler(gradingService, notifier, logger)
	buildResultHandler := handler.NewBuildResultHandler(gradingService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		TestCaseHandler:    testCaseHandler,
		CategoryHandler:    categoryHandler,
		GradingHandler:     gradingHandler,
		AssessmentHandler:  assessmentHandler,
		ResultHandler:      resultHandler,
		BuildResultHandler: buildResultHandler,
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
