package validator

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/septivank/utility-reading-api/internal/db"
	"github.com/septivank/utility-reading-api/tools/dateparser"
)

// FieldErrors maps a field name to the validation messages recorded for it
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Submission is a validated upload request with the image payload decoded
type Submission struct {
	ImageData    []byte
	ImageMIME    string
	CustomerCode string
	MeasureDate  string
	MeasureType  string
}

var imageDataURIPattern = regexp.MustCompile(`^data:(image/(?:jpeg|jpg|png|gif|webp|bmp|heic));base64,([A-Za-z0-9+/]+={0,2})$`)

// ValidateUpload checks every field of an upload submission independently and
// accumulates messages per field instead of stopping at the first failure.
// On success the returned submission carries the decoded image bytes.
func ValidateUpload(image, customerCode, measureDatetime, measureType string) (*Submission, FieldErrors) {
	fieldErrors := FieldErrors{}
	sub := &Submission{
		CustomerCode: strings.TrimSpace(customerCode),
		MeasureDate:  measureDatetime,
		MeasureType:  measureType,
	}

	if image == "" {
		fieldErrors.add("image", "image is required")
	} else if match := imageDataURIPattern.FindStringSubmatch(image); match == nil {
		fieldErrors.add("image", "image must be a base64 image data URI")
	} else {
		data, err := base64.StdEncoding.DecodeString(match[2])
		if err != nil {
			fieldErrors.add("image", "image payload is not valid base64")
		} else {
			sub.ImageData = data
			sub.ImageMIME = match[1]
		}
	}

	if sub.CustomerCode == "" {
		fieldErrors.add("customer_code", "customer_code is required")
	}

	if measureDatetime == "" {
		fieldErrors.add("measure_datetime", "measure_datetime is required")
	} else if _, err := dateparser.ParseMeasureDate(measureDatetime); err != nil {
		fieldErrors.add("measure_datetime", "measure_datetime is not a recognized date format")
	}

	if measureType != db.MeasureTypeWater && measureType != db.MeasureTypeGas {
		fieldErrors.add("measure_type", "measure_type must be WATER or GAS")
	}

	if len(fieldErrors) > 0 {
		return nil, fieldErrors
	}
	return sub, nil
}

// NormalizeMeasureType maps a case-insensitive type filter to its canonical
// value. Returns false for anything that is not WATER or GAS.
func NormalizeMeasureType(raw string) (string, bool) {
	switch strings.ToUpper(raw) {
	case db.MeasureTypeWater:
		return db.MeasureTypeWater, true
	case db.MeasureTypeGas:
		return db.MeasureTypeGas, true
	default:
		return "", false
	}
}
