package plateHandler

import (
	"PlateVision/internal/api/plate"
	contextPkg "PlateVision/pkg/context"
	"PlateVision/pkg/log"
	"PlateVision/pkg/response"
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	maxReadTimeout = 60 * time.Second
	writeTimeout   = 10 * time.Second
)

// handlePlateWebSocket treats every binary frame as one image and answers each with a
// PlateResult or {"error": "..."}.
func (h *PlateHandler) handlePlateWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals("X-Request-ID").(string)
	baseCtx := contextPkg.WithRequestID(context.Background(), requestID)
	entry := log.WithRequestID(baseCtx)

	entry.Info("Plate WebSocket client connected")
	defer entry.Info("Plate WebSocket client disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			entry.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(maxReadTimeout)); err != nil {
			entry.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				entry.Errorf("Plate WebSocket error: %v", err)
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			entry.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		ctx, cancel := context.WithTimeout(baseCtx, h.requestTimeout)
		result, err := h.plateService.ProcessImage(ctx, message)
		cancel()

		var payload interface{} = result
		if err != nil {
			if response.StatusCode(err) >= 500 {
				entry.WithField("error", err.Error()).Error("Error processing plate frame")
			} else {
				entry.WithField("error", err.Error()).Warn("Rejected plate frame")
			}
			payload = plate.ProcessDetailResponse{Error: streamErrorMessage(err)}
		}

		if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			entry.Errorf("Error setting write deadline: %v", err)
			break
		}

		if err := c.WriteJSON(payload); err != nil {
			entry.Errorf("Error writing JSON response: %v", err)
			break
		}
	}
}

func streamErrorMessage(err error) string {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		return respErr.Error()
	}
	return "An unexpected error occurred"
}
