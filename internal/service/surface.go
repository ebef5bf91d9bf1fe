package service

//go:generate mockgen -source=surface.go -destination=mocks/surface_mocks.go -package=mocks

import (
	"context"
	"fmt"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/fanout"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
)

// порог уровня high: один свежий подтвержденный отчет высокой тяжести
const highScore = 4.0

// SubscriptionHub определяет контракт рассылки дельт подписчикам
type SubscriptionHub interface {
	Subscribe(req fanout.SubscribeRequest) (*fanout.Subscription, []fanout.Event, error)
	Unsubscribe(id string)
}

// SurfaceService определяет чтение поверхности риска и подписку на нее
type SurfaceService interface {
	Surface(ctx context.Context, region models.Region) ([]models.RiskCell, string, error)
	CheckLocation(ctx context.Context, coord models.Coordinate) (*models.LocationRisk, error)
	Subscribe(ctx context.Context, region models.Region, epoch string, lastSeen map[models.CellID]int64) (*fanout.Subscription, []fanout.Event, error)
	Unsubscribe(id string)
}

type surfaceService struct {
	aggregator RiskAggregator
	hub        SubscriptionHub
	grid       *geogrid.Grid
	logger     *logrus.Logger
}

func NewSurfaceService(aggregator RiskAggregator, hub SubscriptionHub, grid *geogrid.Grid, logger *logrus.Logger) SurfaceService {
	return &surfaceService{
		aggregator: aggregator,
		hub:        hub,
		grid:       grid,
		logger:     logger,
	}
}

// Surface возвращает известные ячейки области и текущую эпоху агрегатора.
// Холодные ячейки, о которых агрегатор ничего не знает, не возвращаются.
func (s *surfaceService) Surface(_ context.Context, region models.Region) ([]models.RiskCell, string, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "surface",
		"method":  "Surface",
	})

	ids, err := s.resolve(region)
	if err != nil {
		log.WithError(err).Warn("Invalid region")
		return nil, "", err
	}

	known := s.aggregator.Surface(ids)
	cells := make([]models.RiskCell, 0, len(known))
	for _, id := range ids {
		if c, ok := known[id]; ok {
			cells = append(cells, c)
		}
	}
	log.WithFields(logrus.Fields{
		"region_cells": len(ids),
		"known_cells":  len(cells),
	}).Debug("Surface read")
	return cells, s.aggregator.Epoch(), nil
}

// CheckLocation оценивает риск в точке
func (s *surfaceService) CheckLocation(_ context.Context, coord models.Coordinate) (*models.LocationRisk, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "surface",
		"method":    "CheckLocation",
		"latitude":  coord.Latitude,
		"longitude": coord.Longitude,
	})

	cell, err := s.aggregator.CellAt(coord)
	if err != nil {
		log.WithError(err).Warn("Invalid coordinate")
		return nil, err
	}

	around, err := s.grid.Neighbors(cell.CellID, 1)
	if err != nil {
		return nil, fmt.Errorf("service: could not resolve neighbors: %w", err)
	}
	known := s.aggregator.Surface(around)
	nearby := make([]models.RiskCell, 0, len(known))
	for _, id := range around {
		if c, ok := known[id]; ok && id != cell.CellID && c.State == models.CellWarm {
			nearby = append(nearby, c)
		}
	}

	risk := &models.LocationRisk{Cell: cell, Level: levelOf(cell), Nearby: nearby}
	log.WithField("level", risk.Level).Info("Location checked")
	return risk, nil
}

// Subscribe регистрирует подписку на ячейки области
func (s *surfaceService) Subscribe(_ context.Context, region models.Region, epoch string, lastSeen map[models.CellID]int64) (*fanout.Subscription, []fanout.Event, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "surface",
		"method":  "Subscribe",
	})

	ids, err := s.resolve(region)
	if err != nil {
		log.WithError(err).Warn("Invalid subscription region")
		return nil, nil, err
	}

	sub, initial, err := s.hub.Subscribe(fanout.SubscribeRequest{Cells: ids, Epoch: epoch, LastSeen: lastSeen})
	if err != nil {
		log.WithError(err).Warn("Failed to subscribe")
		return nil, nil, fmt.Errorf("service: could not subscribe: %w", err)
	}
	log.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"cells":           len(ids),
		"initial_events":  len(initial),
	}).Info("Subscription registered")
	return sub, initial, nil
}

func (s *surfaceService) Unsubscribe(id string) {
	s.hub.Unsubscribe(id)
	s.logger.WithFields(logrus.Fields{
		"service":         "surface",
		"method":          "Unsubscribe",
		"subscription_id": id,
	}).Info("Subscription removed")
}

func (s *surfaceService) resolve(region models.Region) ([]models.CellID, error) {
	variants := 0
	if len(region.Cells) > 0 {
		variants++
	}
	if region.Box != nil {
		variants++
	}
	if region.Center != nil {
		variants++
	}
	if variants != 1 {
		return nil, apperr.InvalidInput("region must be given as exactly one of cells, bbox or center with radius")
	}

	switch {
	case region.Box != nil:
		b := region.Box
		return s.grid.Box(b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
	case region.Center != nil:
		if region.Radius <= 0 {
			return nil, apperr.InvalidInput("radius must be positive")
		}
		return s.grid.Around(*region.Center, region.Radius)
	}
	if len(region.Cells) > s.grid.MaxRegionCells() {
		return nil, apperr.InvalidInput("region of %d cells exceeds %d cells", len(region.Cells), s.grid.MaxRegionCells())
	}
	return region.Cells, nil
}

func levelOf(c models.RiskCell) models.RiskLevel {
	switch {
	case c.State == models.CellCold:
		return models.RiskLow
	case c.Score >= highScore:
		return models.RiskHigh
	}
	return models.RiskElevated
}
