package plate

import (
	"PlateVision/pkg/response"
	"net/http"
)

var (
	ErrNoFile            = response.NewError(http.StatusBadRequest, "No file received")
	ErrTooManyFiles      = response.NewError(http.StatusBadRequest, "too many files in batch")
	ErrInvalidImage      = response.NewError(http.StatusBadRequest, "uploaded file is not a decodable image")
	ErrDetectionFailed   = response.NewError(http.StatusBadGateway, "plate detection failed")
	ErrRecognitionFailed = response.NewError(http.StatusBadGateway, "plate recognition failed")
	ErrInferenceTimeout  = response.NewError(http.StatusGatewayTimeout, "model inference timed out")
)
