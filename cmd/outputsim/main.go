package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frame is the subset of server frames the simulator understands
type frame struct {
	Type       string `json:"type"`
	ResourceID string `json:"resource_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	Sequence   int    `json:"sequence,omitempty"`
	Src        string `json:"src,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Details    string `json:"details,omitempty"`
}

type playerStatus struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	ResourceID string `json:"resource_id,omitempty"`
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws/outputs", "output websocket endpoint")
	token := flag.String("token", os.Getenv("OUTPUT_TOKEN"), "output JWT")
	duration := flag.Duration("duration", 2*time.Second, "simulated length of every resource")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *token == "" {
		logger.Fatal("An output token is required (-token or OUTPUT_TOKEN)")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+*token)

	logger.Info("Connecting", zap.String("url", *serverURL))
	c, _, err := websocket.DefaultDialer.Dial(*serverURL, headers)
	if err != nil {
		logger.Fatal("Dial failed", zap.Error(err))
	}
	defer c.Close()

	frames := make(chan frame)
	go readFrames(c, frames, logger)

	var (
		current  string
		finished <-chan time.Time
		timer    *time.Timer
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			finished = nil
		}
	}
	send := func(status, resourceID string) {
		if err := c.WriteJSON(playerStatus{Type: "player_status", Status: status, ResourceID: resourceID}); err != nil {
			logger.Error("Failed to send player status", zap.Error(err))
		}
	}

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				logger.Info("Connection closed by server")
				return
			}

			switch f.Type {
			case "play":
				stopTimer()
				current = f.ResourceID
				logger.Info("Playing",
					zap.String("messageID", f.MessageID),
					zap.Int("sequence", f.Sequence),
					zap.String("src", f.Src))
				send("playing", current)
				timer = time.NewTimer(*duration)
				finished = timer.C

			case "stop":
				stopTimer()
				if current == "" {
					logger.Debug("Stop while idle")
					continue
				}
				logger.Info("Stopped", zap.String("resourceID", current))
				send("idle", current)
				current = ""

			case "error":
				logger.Warn("Server rejected frame",
					zap.String("code", f.ErrorCode),
					zap.String("details", f.Details))

			default:
				logger.Debug("Ignoring frame", zap.String("type", f.Type))
			}

		case <-finished:
			timer = nil
			finished = nil
			logger.Info("Finished", zap.String("resourceID", current))
			send("idle", current)
			current = ""

		case <-interrupt:
			logger.Info("Interrupted, closing")
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func readFrames(c *websocket.Conn, frames chan<- frame, logger *zap.Logger) {
	defer close(frames)

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Read failed", zap.Error(err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			logger.Warn("Failed to parse frame", zap.Error(err))
			continue
		}
		frames <- f
	}
}
