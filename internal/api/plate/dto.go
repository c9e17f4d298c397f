package plate

import "PlateVision/internal/entity"

// UploadField is the multipart field carrying the uploaded image(s).
const UploadField = "files"

type ProcessImageResponse struct {
	Plate string `json:"plate"`
}

type ProcessBase64Request struct {
	ImageBase64 string `json:"image_base64" validate:"required,base64|datauri"`
}

type ProcessDetailResponse struct {
	Data  *entity.PlateResult `json:"data,omitempty"`
	Error string              `json:"error,omitempty"`
}

type BatchResponse struct {
	Plates []string `json:"plates"`
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Models     ModelSources      `json:"models"`
}

// ModelSources are the model identifiers the service was started with.
type ModelSources struct {
	DetectorWeights     string `json:"detector_weights"`
	CRNNModel           string `json:"crnn_model"`
	RecognizerProcessor string `json:"recognizer_processor"`
	RecognizerModel     string `json:"recognizer_model"`
	RecognizerBackend   string `json:"recognizer_backend"`
}
