package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/septivank/utility-reading-api/internal/anomaly"
	"github.com/septivank/utility-reading-api/internal/config"
	"github.com/septivank/utility-reading-api/internal/db"
	"github.com/septivank/utility-reading-api/internal/mq"
	"github.com/septivank/utility-reading-api/internal/recognition"
	"github.com/septivank/utility-reading-api/internal/service"
	"go.uber.org/zap"
)

const testImage = "data:image/png;base64,aGVsbG8gbWV0ZXI="

// memStore is an in-memory Store with the same uniqueness semantics as the
// measures table
type memStore struct {
	measures []db.Measure
}

func samePeriod(a, b db.Measure) bool {
	return a.CustomerCode == b.CustomerCode &&
		a.Type == b.Type &&
		a.Datetime.Year() == b.Datetime.Year() &&
		a.Datetime.Month() == b.Datetime.Month()
}

func (s *memStore) InsertMeasure(ctx context.Context, m *db.Measure) (bool, error) {
	for _, existing := range s.measures {
		if samePeriod(existing, *m) {
			return false, nil
		}
	}
	s.measures = append(s.measures, *m)
	return true, nil
}

func (s *memStore) ExistsForPeriod(ctx context.Context, customerCode, measureType string, year, month int) (bool, error) {
	for _, m := range s.measures {
		if m.CustomerCode == customerCode && m.Type == measureType &&
			m.Datetime.Year() == year && int(m.Datetime.Month()) == month {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetMeasure(ctx context.Context, uuid string) (*db.Measure, error) {
	for i := range s.measures {
		if s.measures[i].UUID == uuid {
			m := s.measures[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memStore) ConfirmMeasure(ctx context.Context, uuid string, confirmedValue int) (bool, error) {
	for i := range s.measures {
		if s.measures[i].UUID == uuid && !s.measures[i].Confirmed {
			s.measures[i].Confirmed = true
			s.measures[i].Value = confirmedValue
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListMeasures(ctx context.Context, customerCode, measureType string) ([]db.Measure, error) {
	var result []db.Measure
	for _, m := range s.measures {
		if m.CustomerCode == customerCode && (measureType == "" || m.Type == measureType) {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *memStore) RecentValues(ctx context.Context, customerCode, measureType string, limit int) ([]int, error) {
	var values []int
	for _, m := range s.measures {
		if m.CustomerCode == customerCode && m.Type == measureType {
			values = append(values, m.Value)
		}
	}
	return values, nil
}

// raceStore simulates a concurrent upload winning the billing period between
// the pre-check and the insert
type raceStore struct {
	memStore
}

func (s *raceStore) ExistsForPeriod(ctx context.Context, customerCode, measureType string, year, month int) (bool, error) {
	return false, nil
}

func (s *raceStore) InsertMeasure(ctx context.Context, m *db.Measure) (bool, error) {
	return false, nil
}

// fakeRecognizer records calls and returns a fixed reading
type fakeRecognizer struct {
	reading recognition.Reading
	err     error
	calls   int
}

func (f *fakeRecognizer) RecognizeReading(ctx context.Context, imageData []byte, mimeType string) (*recognition.Reading, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	reading := f.reading
	return &reading, nil
}

func newTestService(store service.Store, recognizer recognition.Recognizer) *service.MeasureService {
	cfg := &config.Config{
		RabbitMQ: config.RabbitMQConfig{RoutingKey: "measure.reading"},
	}
	detector := anomaly.NewDetector(3.0, 3)
	return service.NewMeasureService(store, recognizer, detector, mq.NewNopPublisher(), cfg, zap.NewNop())
}

func validUpload() service.UploadRequest {
	return service.UploadRequest{
		Image:           testImage,
		CustomerCode:    "cust123",
		MeasureDatetime: "15/03/2024",
		MeasureType:     "WATER",
	}
}

func TestUpload_Success(t *testing.T) {
	store := &memStore{}
	recognizer := &fakeRecognizer{
		reading: recognition.Reading{UUID: "m-1", Value: 42, ImageURL: "https://files.example/m-1"},
	}
	svc := newTestService(store, recognizer)

	result, err := svc.Upload(context.Background(), validUpload())
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if result.MeasureUUID != "m-1" {
		t.Errorf("Expected uuid m-1, got %s", result.MeasureUUID)
	}
	if result.MeasureValue != 42 {
		t.Errorf("Expected value 42, got %d", result.MeasureValue)
	}
	if result.ImageURL != "https://files.example/m-1" {
		t.Errorf("Expected image url, got %s", result.ImageURL)
	}

	if len(store.measures) != 1 {
		t.Fatalf("Expected one stored measure, got %d", len(store.measures))
	}
	stored := store.measures[0]
	if stored.Confirmed {
		t.Error("Expected new measure to start unconfirmed")
	}
	if stored.Datetime.Year() != 2024 || stored.Datetime.Month() != time.March {
		t.Errorf("Expected billing date March 2024, got %v", stored.Datetime)
	}
}

func TestUpload_ValidationFailureHasNoSideEffects(t *testing.T) {
	store := &memStore{}
	recognizer := &fakeRecognizer{}
	svc := newTestService(store, recognizer)

	req := validUpload()
	req.Image = "not-an-image"
	req.MeasureType = "ELECTRICITY"

	_, err := svc.Upload(context.Background(), req)

	var badRequest *service.BadRequestError
	if !errors.As(err, &badRequest) {
		t.Fatalf("Expected BadRequestError, got %v", err)
	}
	if badRequest.Code != service.CodeInvalidData {
		t.Errorf("Expected code INVALID_DATA, got %s", badRequest.Code)
	}
	if len(badRequest.Fields["image"]) == 0 || len(badRequest.Fields["measure_type"]) == 0 {
		t.Errorf("Expected messages for both violated fields, got %v", badRequest.Fields)
	}

	if recognizer.calls != 0 {
		t.Error("Expected no recognition call for invalid submission")
	}
	if len(store.measures) != 0 {
		t.Error("Expected no stored measure for invalid submission")
	}
}

func TestUpload_DuplicatePeriodAcrossFormats(t *testing.T) {
	store := &memStore{}
	recognizer := &fakeRecognizer{
		reading: recognition.Reading{UUID: "m-1", Value: 42, ImageURL: "url"},
	}
	svc := newTestService(store, recognizer)

	if _, err := svc.Upload(context.Background(), validUpload()); err != nil {
		t.Fatalf("First upload failed: %v", err)
	}

	// Same customer, type and month, written in a different date format
	req := validUpload()
	req.MeasureDatetime = "2024-03-02"

	_, err := svc.Upload(context.Background(), req)

	var conflict *service.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
	if conflict.Code != service.CodeDoubleReport {
		t.Errorf("Expected code DOUBLE_REPORT, got %s", conflict.Code)
	}

	if recognizer.calls != 1 {
		t.Errorf("Expected no recognition call for the duplicate, got %d calls", recognizer.calls)
	}
	if len(store.measures) != 1 {
		t.Errorf("Expected one stored measure, got %d", len(store.measures))
	}
}

func TestUpload_InsertRaceReportsConflict(t *testing.T) {
	recognizer := &fakeRecognizer{
		reading: recognition.Reading{UUID: "m-1", Value: 42, ImageURL: "url"},
	}
	svc := newTestService(&raceStore{}, recognizer)

	_, err := svc.Upload(context.Background(), validUpload())

	var conflict *service.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError from rejected insert, got %v", err)
	}
	if conflict.Code != service.CodeDoubleReport {
		t.Errorf("Expected code DOUBLE_REPORT, got %s", conflict.Code)
	}
}

func TestUpload_RecognitionFailureLeavesNoRecord(t *testing.T) {
	store := &memStore{}
	recognizer := &fakeRecognizer{err: errors.New("upstream unavailable")}
	svc := newTestService(store, recognizer)

	_, err := svc.Upload(context.Background(), validUpload())
	if err == nil {
		t.Fatal("Expected error when recognition fails")
	}

	var badRequest *service.BadRequestError
	var conflict *service.ConflictError
	if errors.As(err, &badRequest) || errors.As(err, &conflict) {
		t.Errorf("Expected an internal error, got %v", err)
	}

	if len(store.measures) != 0 {
		t.Error("Expected no partial record after recognition failure")
	}
}

func TestConfirm_SucceedsOnceThenConflicts(t *testing.T) {
	store := &memStore{measures: []db.Measure{{
		UUID:         "m-1",
		Value:        42,
		Datetime:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Type:         db.MeasureTypeWater,
		CustomerCode: "cust123",
	}}}
	svc := newTestService(store, &fakeRecognizer{})

	if err := svc.Confirm(context.Background(), "m-1", 45); err != nil {
		t.Fatalf("First confirmation failed: %v", err)
	}

	if !store.measures[0].Confirmed {
		t.Error("Expected measure to be confirmed")
	}
	if store.measures[0].Value != 45 {
		t.Errorf("Expected corrected value 45, got %d", store.measures[0].Value)
	}

	err := svc.Confirm(context.Background(), "m-1", 50)
	var conflict *service.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError on second confirmation, got %v", err)
	}
	if conflict.Code != service.CodeConfirmationDuplicate {
		t.Errorf("Expected code CONFIRMATION_DUPLICATE, got %s", conflict.Code)
	}
	if store.measures[0].Value != 45 {
		t.Errorf("Expected value unchanged after rejected confirmation, got %d", store.measures[0].Value)
	}
}

func TestConfirm_UnknownUUID(t *testing.T) {
	svc := newTestService(&memStore{}, &fakeRecognizer{})

	err := svc.Confirm(context.Background(), "nope", 10)

	var notFound *service.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
	if notFound.Code != service.CodeMeasureNotFound {
		t.Errorf("Expected code MEASURE_NOT_FOUND, got %s", notFound.Code)
	}
}

func TestList_CaseInsensitiveTypeFilter(t *testing.T) {
	store := &memStore{measures: []db.Measure{
		{UUID: "m-1", Type: db.MeasureTypeWater, CustomerCode: "cust123", Datetime: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{UUID: "m-2", Type: db.MeasureTypeGas, CustomerCode: "cust123", Datetime: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)},
	}}
	svc := newTestService(store, &fakeRecognizer{})

	measures, err := svc.List(context.Background(), "cust123", "water")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(measures) != 1 || measures[0].UUID != "m-1" {
		t.Errorf("Expected only the WATER measure, got %v", measures)
	}
}

func TestList_InvalidTypeFilter(t *testing.T) {
	svc := newTestService(&memStore{}, &fakeRecognizer{})

	_, err := svc.List(context.Background(), "cust123", "electricity")

	var badRequest *service.BadRequestError
	if !errors.As(err, &badRequest) {
		t.Fatalf("Expected BadRequestError, got %v", err)
	}
	if badRequest.Code != service.CodeInvalidType {
		t.Errorf("Expected code INVALID_TYPE, got %s", badRequest.Code)
	}
}

func TestList_EmptyResultIsNotFound(t *testing.T) {
	svc := newTestService(&memStore{}, &fakeRecognizer{})

	_, err := svc.List(context.Background(), "cust123", "")

	var notFound *service.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError for empty listing, got %v", err)
	}
	if notFound.Code != service.CodeMeasuresNotFound {
		t.Errorf("Expected code MEASURES_NOT_FOUND, got %s", notFound.Code)
	}
}

func TestUploadConfirmList_RoundTrip(t *testing.T) {
	store := &memStore{}
	recognizer := &fakeRecognizer{
		reading: recognition.Reading{UUID: "m-1", Value: 42, ImageURL: "https://files.example/m-1"},
	}
	svc := newTestService(store, recognizer)

	result, err := svc.Upload(context.Background(), validUpload())
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if err := svc.Confirm(context.Background(), result.MeasureUUID, 47); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	measures, err := svc.List(context.Background(), "cust123", "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(measures) != 1 {
		t.Fatalf("Expected one measure, got %d", len(measures))
	}
	if measures[0].UUID != "m-1" {
		t.Errorf("Expected identifier unchanged, got %s", measures[0].UUID)
	}
	if !measures[0].Confirmed {
		t.Error("Expected measure to be confirmed after round trip")
	}
	if measures[0].Value != 47 {
		t.Errorf("Expected confirmed value 47, got %d", measures[0].Value)
	}
}
