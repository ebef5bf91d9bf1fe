package service

//go:generate mockgen -source=sos.go -destination=mocks/sos_mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
)

const maxTrustedContacts = 10

// AlertDispatcher определяет контракт рассылки SOS
type AlertDispatcher interface {
	Trigger(ctx context.Context, ownerID string, coord *models.Coordinate, status models.LocationStatus) (*models.DispatchResult, error)
}

// AlertRepository определяет чтение тревог и управление доверенными контактами
type AlertRepository interface {
	GetAlert(ctx context.Context, id string) (*models.SOSAlert, error)
	ListTrustedContacts(ctx context.Context, ownerID string) ([]models.TrustedContact, error)
	ReplaceTrustedContacts(ctx context.Context, ownerID string, contacts []models.TrustedContact) error
}

// LocationProvider определяет источник последнего местоположения пользователя
type LocationProvider interface {
	Record(ctx context.Context, fix models.LocationFix) error
	Current(ctx context.Context, userID string) (models.Coordinate, error)
}

// IdempotencyStore определяет хранение ключей идемпотентности SOS-запросов
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Complete(ctx context.Context, key, alertID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type SOSConfig struct {
	IdempotencyTTL     time.Duration
	LocationRetryDelay time.Duration
}

// SOSService определяет бизнес-логику SOS-тревог
type SOSService interface {
	TriggerSOS(ctx context.Context, ownerID string, req models.SOSRequest) (*models.DispatchResult, error)
	GetAlert(ctx context.Context, ownerID, alertID string) (*models.SOSAlert, error)
	GetContacts(ctx context.Context, ownerID string) ([]models.TrustedContact, error)
	ReplaceContacts(ctx context.Context, ownerID string, contacts []models.TrustedContact) error
	UpdateLocation(ctx context.Context, fix models.LocationFix) error
}

type sosService struct {
	dispatcher  AlertDispatcher
	repo        AlertRepository
	locations   LocationProvider
	idempotency IdempotencyStore
	cfg         SOSConfig
	validate    *validator.Validate
	logger      *logrus.Logger
	now         func() time.Time
}

func NewSOSService(dispatcher AlertDispatcher, repo AlertRepository, locations LocationProvider, idempotency IdempotencyStore, cfg SOSConfig, logger *logrus.Logger) SOSService {
	return &sosService{
		dispatcher:  dispatcher,
		repo:        repo,
		locations:   locations,
		idempotency: idempotency,
		cfg:         cfg,
		validate:    validator.New(),
		logger:      logger,
		now:         time.Now,
	}
}

// TriggerSOS рассылает тревогу доверенным контактам пользователя.
// Координата запроса имеет приоритет над последним известным местоположением.
func (s *sosService) TriggerSOS(ctx context.Context, ownerID string, req models.SOSRequest) (*models.DispatchResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "sos",
		"method":   "TriggerSOS",
		"owner_id": ownerID,
	})

	if ownerID == "" {
		return nil, apperr.InvalidInput("owner id is required")
	}
	if req.Coordinate != nil {
		if err := geogrid.Validate(*req.Coordinate); err != nil {
			return nil, err
		}
	}

	key := ""
	if req.IdempotencyKey != "" {
		key = ownerID + ":" + req.IdempotencyKey
		alertID, reserved, err := s.idempotency.Reserve(ctx, key, s.cfg.IdempotencyTTL)
		if err != nil {
			log.WithError(err).Error("Failed to reserve idempotency key")
			return nil, fmt.Errorf("service: could not reserve idempotency key: %w", err)
		}
		if !reserved {
			return s.replay(ctx, log, alertID)
		}
	}

	coord, status := s.resolveLocation(ctx, log, ownerID, req.Coordinate)

	result, err := s.dispatcher.Trigger(ctx, ownerID, coord, status)
	if err != nil {
		if key != "" {
			if rerr := s.idempotency.Release(context.WithoutCancel(ctx), key); rerr != nil {
				log.WithError(rerr).Warn("Failed to release idempotency key")
			}
		}
		log.WithError(err).Warn("SOS dispatch failed")
		return nil, fmt.Errorf("service: could not trigger sos: %w", err)
	}

	if key != "" {
		if err := s.idempotency.Complete(context.WithoutCancel(ctx), key, result.Alert.ID, s.cfg.IdempotencyTTL); err != nil {
			log.WithError(err).Warn("Failed to complete idempotency key")
		}
	}

	log.WithFields(logrus.Fields{
		"alert_id":        result.Alert.ID,
		"location_status": status,
		"delivered":       result.Delivered,
		"failed":          result.Failed,
	}).Info("SOS dispatched")
	return result, nil
}

func (s *sosService) replay(ctx context.Context, log *logrus.Entry, alertID string) (*models.DispatchResult, error) {
	if alertID == "" {
		log.Warn("Duplicate SOS request while dispatch is in progress")
		return nil, apperr.Conflict("sos with this idempotency key is already in progress")
	}
	alert, err := s.repo.GetAlert(ctx, alertID)
	if err != nil {
		log.WithError(err).Error("Failed to load alert for repeated request")
		return nil, fmt.Errorf("service: could not load alert: %w", err)
	}
	delivered, failed := alert.Counts()
	log.WithField("alert_id", alertID).Info("Repeated SOS request answered from existing alert")
	return &models.DispatchResult{Alert: alert, Delivered: delivered, Failed: failed}, nil
}

func (s *sosService) resolveLocation(ctx context.Context, log *logrus.Entry, ownerID string, provided *models.Coordinate) (*models.Coordinate, models.LocationStatus) {
	if provided != nil {
		fix := models.LocationFix{
			UserID:     ownerID,
			Coordinate: provided,
			Permission: models.PermissionGranted,
			ReportedAt: s.now().UTC(),
		}
		if err := s.locations.Record(ctx, fix); err != nil {
			log.WithError(err).Warn("Failed to record provided location")
		}
		return provided, models.LocationProvided
	}

	coord, err := s.locations.Current(ctx, ownerID)
	if apperr.IsTransient(err) && !errors.Is(err, context.Canceled) {
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.LocationRetryDelay):
			coord, err = s.locations.Current(ctx, ownerID)
		}
	}

	switch {
	case err == nil:
		return &coord, models.LocationLastKnown
	case apperr.IsPermanent(err):
		log.WithError(err).Warn("Location permission denied, sending SOS without coordinate")
		return nil, models.LocationPermissionDenied
	}
	log.WithError(err).Warn("Location unavailable, sending SOS without coordinate")
	return nil, models.LocationUnavailable
}

// GetAlert возвращает тревогу владельца. Чужие тревоги не раскрываются.
func (s *sosService) GetAlert(ctx context.Context, ownerID, alertID string) (*models.SOSAlert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "sos",
		"method":   "GetAlert",
		"owner_id": ownerID,
		"alert_id": alertID,
	})

	alert, err := s.repo.GetAlert(ctx, alertID)
	if err != nil {
		log.WithError(err).Warn("Failed to get alert")
		return nil, fmt.Errorf("service: could not get alert: %w", err)
	}
	if alert.OwnerID != ownerID {
		log.Warn("Alert belongs to another user")
		return nil, apperr.NotFound("alert %s not found", alertID)
	}
	return alert, nil
}

func (s *sosService) GetContacts(ctx context.Context, ownerID string) ([]models.TrustedContact, error) {
	contacts, err := s.repo.ListTrustedContacts(ctx, ownerID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service":  "sos",
			"method":   "GetContacts",
			"owner_id": ownerID,
		}).WithError(err).Error("Failed to list trusted contacts")
		return nil, fmt.Errorf("service: could not list contacts: %w", err)
	}
	return contacts, nil
}

// ReplaceContacts заменяет список доверенных контактов целиком
func (s *sosService) ReplaceContacts(ctx context.Context, ownerID string, contacts []models.TrustedContact) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "sos",
		"method":   "ReplaceContacts",
		"owner_id": ownerID,
		"count":    len(contacts),
	})

	if len(contacts) > maxTrustedContacts {
		return apperr.InvalidInput("at most %d trusted contacts are allowed", maxTrustedContacts)
	}
	seen := make(map[string]struct{}, len(contacts))
	for i := range contacts {
		c := &contacts[i]
		c.OwnerID = ownerID
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return apperr.InvalidInput("contact %d has no name", i)
		}
		if err := s.validate.Var(c.Phone, "required,e164"); err != nil {
			return apperr.InvalidInput("contact %d has invalid phone number", i)
		}
		if _, dup := seen[c.Phone]; dup {
			return apperr.InvalidInput("phone %s is listed twice", c.Phone)
		}
		seen[c.Phone] = struct{}{}
	}

	if err := s.repo.ReplaceTrustedContacts(ctx, ownerID, contacts); err != nil {
		log.WithError(err).Error("Failed to replace trusted contacts")
		return fmt.Errorf("service: could not replace contacts: %w", err)
	}
	log.Info("Trusted contacts replaced")
	return nil
}

// UpdateLocation сохраняет свежий фикс местоположения или отказ в доступе к нему
func (s *sosService) UpdateLocation(ctx context.Context, fix models.LocationFix) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":    "sos",
		"method":     "UpdateLocation",
		"user_id":    fix.UserID,
		"permission": fix.Permission,
	})

	switch fix.Permission {
	case models.PermissionGranted:
		if fix.Coordinate == nil {
			return apperr.InvalidInput("coordinate is required when permission is granted")
		}
		if err := geogrid.Validate(*fix.Coordinate); err != nil {
			return err
		}
	case models.PermissionDenied:
		fix.Coordinate = nil
	default:
		return apperr.InvalidInput("unknown location permission %q", fix.Permission)
	}
	fix.ReportedAt = s.now().UTC()

	if err := s.locations.Record(ctx, fix); err != nil {
		log.WithError(err).Error("Failed to record location")
		return fmt.Errorf("service: could not record location: %w", err)
	}
	log.Debug("Location recorded")
	return nil
}
