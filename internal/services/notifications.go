package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

const DefaultTextbeltURL = "https://textbelt.com/text"

var ErrSMSRejected = errors.New("sms rejected by provider")

type UserLookup interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// NotificationService texts patients when their checkup is accepted or
// completed. It is a no-op without a Textbelt key.
type NotificationService struct {
	apiKey   string
	endpoint string
	client   *http.Client
	users    UserLookup
	breaker  *gobreaker.CircuitBreaker[struct{}]
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewNotificationService(apiKey, endpoint string, users UserLookup, log *zap.Logger) *NotificationService {
	if endpoint == "" {
		endpoint = DefaultTextbeltURL
	}
	s := &NotificationService{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		users:    users,
		log:      log,
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "textbelt",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return s
}

func (s *NotificationService) Enabled() bool {
	return s.apiKey != ""
}

func messageFor(ev models.CheckupEvent) (string, bool) {
	switch {
	case ev.Type == models.EventCheckupStatusChanged && ev.Status == models.StatusInProgress:
		return "OnlyFix: your dentist has accepted your checkup request.", true
	case ev.Type == models.EventCheckupCompleted:
		return "OnlyFix: your checkup is completed. Your report is ready to download.", true
	}
	return "", false
}

// Publish sends the SMS in a goroutine so it never holds up the API response.
func (s *NotificationService) Publish(ctx context.Context, ev models.CheckupEvent) error {
	if !s.Enabled() {
		return nil
	}
	msg, ok := messageFor(ev)
	if !ok {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		patient, err := s.users.FindByID(ctx, ev.PatientID)
		if err != nil {
			s.log.Warn("sms not sent: patient lookup failed", zap.String("checkupId", ev.CheckupID.Hex()), zap.Error(err))
			return
		}
		if patient.Phone == "" {
			s.log.Info("sms not sent: patient has no phone number", zap.String("patientId", patient.ID.Hex()))
			return
		}

		if err := s.send(ctx, patient.Phone, msg); err != nil {
			s.log.Warn("sms delivery failed", zap.String("checkupId", ev.CheckupID.Hex()), zap.Error(err))
			return
		}
		s.log.Info("sms sent", zap.String("checkupId", ev.CheckupID.Hex()))
	}()
	return nil
}

// Wait blocks until all in-flight messages are done.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

type textbeltResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *NotificationService) send(ctx context.Context, phone, message string) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		body, err := json.Marshal(map[string]string{
			"phone":   phone,
			"message": message,
			"key":     s.apiKey,
		})
		if err != nil {
			return struct{}{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("calling textbelt: %w", err)
		}
		defer resp.Body.Close()

		var result textbeltResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return struct{}{}, fmt.Errorf("decoding textbelt response (status %d): %w", resp.StatusCode, err)
		}
		if !result.Success {
			return struct{}{}, fmt.Errorf("%w: %s", ErrSMSRejected, result.Error)
		}
		return struct{}{}, nil
	})
	return err
}
