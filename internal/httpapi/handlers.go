package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-reading-api/internal/logging"
	"github.com/septivank/utility-reading-api/internal/service"
	"go.uber.org/zap"
)

type uploadBody struct {
	Image           string `json:"image"`
	CustomerCode    string `json:"customer_code"`
	MeasureDatetime string `json:"measure_datetime"`
	MeasureType     string `json:"measure_type"`
}

type uploadResponse struct {
	ImageURL     string `json:"image_url"`
	MeasureValue int    `json:"measure_value"`
	MeasureUUID  string `json:"measure_uuid"`
}

type confirmBody struct {
	MeasureUUID    string `json:"measure_uuid"`
	ConfirmedValue *int   `json:"confirmed_value"`
}

type measureItem struct {
	MeasureUUID     string `json:"measure_uuid"`
	MeasureDatetime string `json:"measure_datetime"`
	MeasureType     string `json:"measure_type"`
	HasConfirmed    bool   `json:"has_confirmed"`
	ImageURL        string `json:"image_url"`
}

type listResponse struct {
	CustomerCode string        `json:"customer_code"`
	Measures     []measureItem `json:"measures"`
}

type errorResponse struct {
	ErrorCode        string      `json:"error_code"`
	ErrorDescription interface{} `json:"error_description"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	reqLogger := logging.WithRequestID(s.logger, uuid.NewString())

	var body uploadBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			ErrorCode:        service.CodeInvalidData,
			ErrorDescription: "request body must be valid JSON",
		})
		return
	}

	result, err := s.service.Upload(r.Context(), service.UploadRequest{
		Image:           body.Image,
		CustomerCode:    body.CustomerCode,
		MeasureDatetime: body.MeasureDatetime,
		MeasureType:     body.MeasureType,
	})
	if err != nil {
		s.writeError(w, reqLogger, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		ImageURL:     result.ImageURL,
		MeasureValue: result.MeasureValue,
		MeasureUUID:  result.MeasureUUID,
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	reqLogger := logging.WithRequestID(s.logger, uuid.NewString())

	var body confirmBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MeasureUUID == "" || body.ConfirmedValue == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			ErrorCode:        service.CodeInvalidData,
			ErrorDescription: "body must contain measure_uuid and confirmed_value",
		})
		return
	}

	if err := s.service.Confirm(r.Context(), body.MeasureUUID, *body.ConfirmedValue); err != nil {
		s.writeError(w, reqLogger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	reqLogger := logging.WithRequestID(s.logger, uuid.NewString())

	customerCode := r.PathValue("customer_code")
	measureType := r.URL.Query().Get("measure_type")

	measures, err := s.service.List(r.Context(), customerCode, measureType)
	if err != nil {
		s.writeError(w, reqLogger, err)
		return
	}

	items := make([]measureItem, 0, len(measures))
	for _, m := range measures {
		items = append(items, measureItem{
			MeasureUUID:     m.UUID,
			MeasureDatetime: m.Datetime.Format(time.DateOnly),
			MeasureType:     m.Type,
			HasConfirmed:    m.Confirmed,
			ImageURL:        m.URL,
		})
	}

	writeJSON(w, http.StatusOK, listResponse{
		CustomerCode: customerCode,
		Measures:     items,
	})
}

// writeError maps a workflow error to the response taxonomy. Anything not in
// the taxonomy is an internal error; the detail is logged, not returned.
func (s *Server) writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var badRequest *service.BadRequestError
	if errors.As(err, &badRequest) {
		var description interface{} = badRequest.Description
		if badRequest.Fields != nil {
			description = badRequest.Fields
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{
			ErrorCode:        badRequest.Code,
			ErrorDescription: description,
		})
		return
	}

	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, errorResponse{
			ErrorCode:        conflict.Code,
			ErrorDescription: conflict.Description,
		})
		return
	}

	var notFound *service.NotFoundError
	if errors.As(err, &notFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{
			ErrorCode:        notFound.Code,
			ErrorDescription: notFound.Description,
		})
		return
	}

	logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		ErrorCode:        service.CodeInternalError,
		ErrorDescription: "an unexpected error occurred",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
