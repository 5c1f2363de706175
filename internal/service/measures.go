package service

import (
	"context"
	"fmt"
	"time"

	"github.com/septivank/utility-reading-api/internal/anomaly"
	"github.com/septivank/utility-reading-api/internal/config"
	"github.com/septivank/utility-reading-api/internal/db"
	"github.com/septivank/utility-reading-api/internal/mq"
	"github.com/septivank/utility-reading-api/internal/recognition"
	"github.com/septivank/utility-reading-api/internal/validator"
	"github.com/septivank/utility-reading-api/tools/dateparser"
	"go.uber.org/zap"
)

const recentValuesLimit = 10

// Store is the persistence surface the workflows need
type Store interface {
	InsertMeasure(ctx context.Context, m *db.Measure) (bool, error)
	ExistsForPeriod(ctx context.Context, customerCode, measureType string, year, month int) (bool, error)
	GetMeasure(ctx context.Context, uuid string) (*db.Measure, error)
	ConfirmMeasure(ctx context.Context, uuid string, confirmedValue int) (bool, error)
	ListMeasures(ctx context.Context, customerCode, measureType string) ([]db.Measure, error)
	RecentValues(ctx context.Context, customerCode, measureType string, limit int) ([]int, error)
}

// UploadRequest is the raw upload submission as received over HTTP
type UploadRequest struct {
	Image           string
	CustomerCode    string
	MeasureDatetime string
	MeasureType     string
}

// UploadResult is returned to the caller after a successful intake
type UploadResult struct {
	ImageURL     string
	MeasureValue int
	MeasureUUID  string
}

// MeasureService orchestrates intake, confirmation and listing of measures
type MeasureService struct {
	store      Store
	recognizer recognition.Recognizer
	detector   *anomaly.Detector
	publisher  mq.Publisher
	cfg        *config.Config
	logger     *zap.Logger
}

// NewMeasureService creates a new measure service
func NewMeasureService(
	store Store,
	recognizer recognition.Recognizer,
	detector *anomaly.Detector,
	publisher mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *MeasureService {
	return &MeasureService{
		store:      store,
		recognizer: recognizer,
		detector:   detector,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Upload runs the intake workflow: validate, normalize the date, check for a
// duplicate billing period, recognize the reading and persist it unconfirmed.
// No side effect happens before recognition succeeds.
func (s *MeasureService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	sub, fieldErrors := validator.ValidateUpload(req.Image, req.CustomerCode, req.MeasureDatetime, req.MeasureType)
	if fieldErrors != nil {
		return nil, &BadRequestError{Code: CodeInvalidData, Fields: fieldErrors}
	}

	// The validator only checks that some layout matches; the workflow needs
	// the structured value.
	measureDate, err := dateparser.ParseMeasureDate(sub.MeasureDate)
	if err != nil {
		return nil, &BadRequestError{
			Code:   CodeInvalidData,
			Fields: validator.FieldErrors{"measure_datetime": {"measure_datetime is not a recognized date format"}},
		}
	}

	year, month := dateparser.BillingPeriod(measureDate)

	exists, err := s.store.ExistsForPeriod(ctx, sub.CustomerCode, sub.MeasureType, year, int(month))
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if exists {
		return nil, &ConflictError{Code: CodeDoubleReport, Description: "a reading for this month already exists"}
	}

	reading, err := s.recognizer.RecognizeReading(ctx, sub.ImageData, sub.ImageMIME)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	s.checkPlausibility(ctx, sub.CustomerCode, sub.MeasureType, reading.Value)

	measure := &db.Measure{
		UUID:         reading.UUID,
		Value:        reading.Value,
		Datetime:     measureDate,
		Type:         sub.MeasureType,
		Confirmed:    false,
		CustomerCode: sub.CustomerCode,
		URL:          reading.ImageURL,
	}

	inserted, err := s.store.InsertMeasure(ctx, measure)
	if err != nil {
		return nil, fmt.Errorf("failed to persist measure: %w", err)
	}
	if !inserted {
		// A concurrent upload won the billing period between the pre-check
		// and the insert.
		return nil, &ConflictError{Code: CodeDoubleReport, Description: "a reading for this month already exists"}
	}

	s.publishEvent(ctx, mq.EventMeasureRecorded, measure)

	s.logger.Info("measure recorded",
		zap.String("measure_uuid", measure.UUID),
		zap.String("customer_code", measure.CustomerCode),
		zap.String("measure_type", measure.Type),
		zap.Int("value", measure.Value),
	)

	return &UploadResult{
		ImageURL:     reading.ImageURL,
		MeasureValue: reading.Value,
		MeasureUUID:  reading.UUID,
	}, nil
}

// Confirm marks a measure confirmed and overwrites its value. The write is a
// single conditional update, so repeated or concurrent confirmations of the
// same measure succeed exactly once.
func (s *MeasureService) Confirm(ctx context.Context, measureUUID string, confirmedValue int) error {
	updated, err := s.store.ConfirmMeasure(ctx, measureUUID, confirmedValue)
	if err != nil {
		return fmt.Errorf("failed to confirm measure: %w", err)
	}

	if !updated {
		measure, err := s.store.GetMeasure(ctx, measureUUID)
		if err != nil {
			return fmt.Errorf("failed to look up measure: %w", err)
		}
		if measure == nil {
			return &NotFoundError{Code: CodeMeasureNotFound, Description: "no reading found for this uuid"}
		}
		return &ConflictError{Code: CodeConfirmationDuplicate, Description: "this reading has already been confirmed"}
	}

	measure, err := s.store.GetMeasure(ctx, measureUUID)
	if err != nil {
		s.logger.Warn("failed to reload confirmed measure for event", zap.Error(err), zap.String("measure_uuid", measureUUID))
	} else if measure != nil {
		s.publishEvent(ctx, mq.EventMeasureConfirmed, measure)
	}

	s.logger.Info("measure confirmed",
		zap.String("measure_uuid", measureUUID),
		zap.Int("confirmed_value", confirmedValue),
	)

	return nil
}

// List returns all measures for a customer, optionally filtered by type. The
// type filter is case-insensitive; an unknown type is a validation error and
// an empty result is reported as not found.
func (s *MeasureService) List(ctx context.Context, customerCode, rawType string) ([]db.Measure, error) {
	measureType := ""
	if rawType != "" {
		normalized, ok := validator.NormalizeMeasureType(rawType)
		if !ok {
			return nil, &BadRequestError{Code: CodeInvalidType, Description: "measure type must be WATER or GAS"}
		}
		measureType = normalized
	}

	measures, err := s.store.ListMeasures(ctx, customerCode, measureType)
	if err != nil {
		return nil, fmt.Errorf("failed to list measures: %w", err)
	}

	if len(measures) == 0 {
		return nil, &NotFoundError{Code: CodeMeasuresNotFound, Description: "no readings found for this customer"}
	}

	return measures, nil
}

func (s *MeasureService) checkPlausibility(ctx context.Context, customerCode, measureType string, value int) {
	priorValues, err := s.store.RecentValues(ctx, customerCode, measureType, recentValuesLimit)
	if err != nil {
		s.logger.Warn("failed to load prior readings for plausibility check",
			zap.Error(err),
			zap.String("customer_code", customerCode),
		)
		return
	}

	if suspect, reason := s.detector.Check(value, priorValues); suspect {
		s.logger.Warn("suspect reading, awaiting confirmation",
			zap.String("customer_code", customerCode),
			zap.String("measure_type", measureType),
			zap.Int("value", value),
			zap.String("reason", reason),
		)
	}
}

func (s *MeasureService) publishEvent(ctx context.Context, kind string, measure *db.Measure) {
	event := mq.MeasureEvent{
		Event:        kind,
		MeasureUUID:  measure.UUID,
		CustomerCode: measure.CustomerCode,
		MeasureType:  measure.Type,
		Value:        measure.Value,
		MeasureDate:  measure.Datetime.Format(time.DateOnly),
	}

	if err := s.publisher.PublishMeasureEvent(ctx, event, s.cfg.RabbitMQ.RoutingKey); err != nil {
		// Events are best effort; the HTTP caller never sees this failure.
		s.logger.Error("failed to publish measure event",
			zap.Error(err),
			zap.String("event", kind),
			zap.String("measure_uuid", measure.UUID),
		)
	}
}
