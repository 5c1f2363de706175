package main

import (
	"context"
	"net/http"
	"time"

	"github.com/septivank/utility-reading-api/internal/anomaly"
	"github.com/septivank/utility-reading-api/internal/config"
	"github.com/septivank/utility-reading-api/internal/db"
	"github.com/septivank/utility-reading-api/internal/httpapi"
	"github.com/septivank/utility-reading-api/internal/mq"
	"github.com/septivank/utility-reading-api/internal/recognition"
	"github.com/septivank/utility-reading-api/internal/repository"
	"github.com/septivank/utility-reading-api/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startHTTPServer(lc fx.Lifecycle, server *httpapi.Server, cfg *config.Config, logger *zap.Logger) *http.Server {
	return httpapi.StartServer(lc, server, cfg.ServicePort, logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideRecognizer creates the Gemini-backed reading recognizer
func ProvideRecognizer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (recognition.Recognizer, error) {
	gemini, err := recognition.NewGemini(
		cfg.Recognition.APIKey,
		cfg.Recognition.Model,
		time.Duration(cfg.Recognition.TimeoutSeconds)*time.Second,
		logger,
	)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return gemini.Close()
		},
	})

	return gemini, nil
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideEventPublisher creates the measure event publisher. Publishing is a
// no-op when RabbitMQ is not configured.
func ProvideEventPublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (mq.Publisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("RABBITMQ_URL not set, measure events disabled")
		return mq.NewNopPublisher(), nil
	}

	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.Exchange, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})

	return publisher, nil
}

// ProvideMeasureService creates a new measure service instance
func ProvideMeasureService(
	repo *repository.Repository,
	recognizer recognition.Recognizer,
	detector *anomaly.Detector,
	publisher mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *service.MeasureService {
	return service.NewMeasureService(repo, recognizer, detector, publisher, cfg, logger)
}

// ProvideServer creates the HTTP server with its routes registered
func ProvideServer(svc *service.MeasureService, pool *db.Pool, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(svc, pool, logger)
}
