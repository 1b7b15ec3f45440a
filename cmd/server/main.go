package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/konclui/speedbridge/pkg/bridge"
	"github.com/konclui/speedbridge/pkg/callflow"
	llmProvider "github.com/konclui/speedbridge/pkg/providers/llm"
	sttProvider "github.com/konclui/speedbridge/pkg/providers/stt"
	ttsProvider "github.com/konclui/speedbridge/pkg/providers/tts"
	"github.com/konclui/speedbridge/pkg/storage"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	openaiKey := os.Getenv("OPENAI_API_KEY")
	if openaiKey == "" {
		log.Fatal("Error: OPENAI_API_KEY must be set.")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}
	publicHost := os.Getenv("PUBLIC_HOST")
	if publicHost == "" {
		publicHost = "localhost:" + port
	}

	logger := newZerologAdapter(os.Getenv("LOG_LEVEL"))

	announcementWindow := 0.0
	if v := os.Getenv("ANNOUNCEMENT_WINDOW_SEC"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			announcementWindow = parsed
		}
	}

	// STT Selection
	var stt bridge.Transcriber
	switch os.Getenv("STT_PROVIDER") {
	case "groq":
		groqKey := os.Getenv("GROQ_API_KEY")
		if groqKey == "" {
			log.Fatal("Error: GROQ_API_KEY must be set for groq STT")
		}
		stt = sttProvider.NewGroqSTT(groqKey, os.Getenv("GROQ_STT_MODEL"))
	case "deepgram":
		deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
		if deepgramKey == "" {
			log.Fatal("Error: DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		stt = sttProvider.NewDeepgramSTT(deepgramKey)
	default:
		stt = sttProvider.NewOpenAISTT(openaiKey, "whisper-1")
	}
	detector := llmProvider.NewDetector(openaiKey)
	tts := ttsProvider.NewElevenLabsTTS(os.Getenv("ELEVENLABS_API_KEY"))
	uploader := storage.NewUploader(
		os.Getenv("SUPABASE_URL"),
		os.Getenv("SUPABASE_SERVICE_KEY"),
		os.Getenv("SUPABASE_BUCKET"),
	)
	dispatcher := bridge.NewDispatcher(os.Getenv("N8N_WEBHOOK_URL"), logger)
	detections := bridge.NewDetectionCache()

	sessionDeps := bridge.SessionDeps{
		STT:        stt,
		Detector:   detector,
		TTS:        tts,
		Uploader:   uploader,
		Dispatcher: dispatcher,
		Detections: detections,
		NewRealtime: func() *bridge.RealtimeClient {
			return bridge.NewRealtimeClient(openaiKey)
		},
		AnnouncementWindowSec: announcementWindow,
		Logger:                logger,
	}

	server := &callflow.Server{
		PublicHost: publicHost,
		Dispatcher: dispatcher,
		Detections: detections,
		Detector:   detector,
		Twilio:     callflow.NewTwilioClient(),
		Sessions:   sessionDeps,
		Logger:     logger,
	}

	handler := callflow.WithCORS(callflow.WithRequestLog(logger, server.Routes()))
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	go func() {
		logger.Info("server listening", "port", port, "public_host", publicHost)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
