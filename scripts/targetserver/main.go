// Command targetserver is a local system under test for trying vuload. It
// serves a weather forecast API and a WebSocket echo endpoint.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var summaries = []string{
	"Freezing", "Bracing", "Chilly", "Cool", "Mild",
	"Warm", "Balmy", "Hot", "Sweltering", "Scorching",
}

type forecast struct {
	Date         string `json:"date"`
	TemperatureC int    `json:"temperatureC"`
	TemperatureF int    `json:"temperatureF"`
	Summary      string `json:"summary"`
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("target server listening", zap.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newMux(logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/weatherforecast", handleForecast)
	mux.HandleFunc("/status/", handleStatus)
	mux.HandleFunc("/echo", handleEcho)
	mux.HandleFunc("/ws", websocketHandler(logger))
	return mux
}

// handleForecast returns five days of random forecasts. ?delay=50ms adds
// server-side latency.
func handleForecast(w http.ResponseWriter, r *http.Request) {
	if d, err := time.ParseDuration(r.URL.Query().Get("delay")); err == nil && d > 0 {
		time.Sleep(d)
	}
	now := time.Now().UTC()
	out := make([]forecast, 0, 5)
	for i := 1; i <= 5; i++ {
		c := rand.IntN(76) - 20
		out = append(out, forecast{
			Date:         now.AddDate(0, 0, i).Format(time.DateOnly),
			TemperatureC: c,
			TemperatureF: 32 + int(float64(c)/0.5556),
			Summary:      summaries[rand.IntN(len(summaries))],
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleStatus replies with the code in the path, e.g. /status/503.
func handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	respondJSON(w, code, map[string]any{"status": code})
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	respondJSON(w, http.StatusOK, map[string]any{
		"method":  r.Method,
		"headers": r.Header,
		"body":    string(body),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func websocketHandler(logger *zap.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		go echo(conn)
	}
}

func echo(conn *websocket.Conn) {
	defer conn.Close()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}
