package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ehealthwave/platform/pkg/common/config"
	"github.com/ehealthwave/platform/pkg/common/database"
	"github.com/ehealthwave/platform/pkg/common/kafka"
	"github.com/ehealthwave/platform/pkg/common/logger"
	"github.com/ehealthwave/platform/pkg/common/models"
	"github.com/ehealthwave/platform/pkg/notify"
	"github.com/gorilla/mux"
	"gorm.io/datatypes"
)

func main() {
	logger.Init()
	cfg := config.Load()

	var history notify.History
	if cfg.PostgresHost != "" {
		db, err := database.GetPostgres()
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to connect to postgres")
		}
		repo := notify.NewHistoryRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate notification history tables")
		}
		history = repo
	} else {
		logger.Log.Warn("POSTGRES_HOST not set, using in-memory notification history")
		history = notify.NewMemoryHistory()
	}

	consumer := kafka.NewConsumer(cfg.NotificationTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithField("topic", cfg.NotificationTopic).Info("Notification worker consuming")
		if err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			return recordNotification(ctx, history, event)
		}); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("consumer stopped")
		}
	}()

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Delivery gateways call back here with the terminal status.
	router.HandleFunc("/api/v1/notifications/status", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Status != models.NotificationStatusDelivered && req.Status != models.NotificationStatusFailed {
			http.Error(w, "status must be delivered or failed", http.StatusBadRequest)
			return
		}
		if err := history.UpdateStatus(r.Context(), req.ID, req.Status); err != nil {
			if errors.Is(err, notify.ErrHistoryNotFound) {
				http.Error(w, "notification not found", http.StatusNotFound)
				return
			}
			logger.Log.WithError(err).Error("failed to update notification status")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	router.HandleFunc("/api/v1/notifications/{patientId}", func(w http.ResponseWriter, r *http.Request) {
		records, err := history.BySubject(r.Context(), mux.Vars(r)["patientId"])
		if err != nil {
			logger.Log.WithError(err).Error("failed to list notification history")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"notifications": records})
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Notification worker started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down notification worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Notification worker stopped")
}

func recordNotification(ctx context.Context, history notify.History, event models.Event) error {
	rec := &notify.HistoryRecord{
		Type:      event.Type,
		Status:    models.NotificationStatusSent,
		Timestamp: event.Timestamp,
		Metadata:  datatypes.JSONMap{},
	}
	if id, ok := event.Data["notification_id"].(string); ok && id != "" {
		rec.ID = id
	} else {
		rec.ID = event.ID
	}
	if subject, ok := event.Data["subject_id"].(string); ok {
		rec.SubjectID = subject
	}
	if phone, ok := event.Data["phone_number"].(string); ok {
		rec.PhoneNumber = phone
	}
	if message, ok := event.Data["message"].(string); ok {
		rec.Message = message
	}
	if language, ok := event.Data["language"].(string); ok {
		rec.Language = language
	}
	if metadata, ok := event.Data["metadata"].(map[string]interface{}); ok {
		rec.Metadata = datatypes.JSONMap(metadata)
	}
	return history.Add(ctx, rec)
}
