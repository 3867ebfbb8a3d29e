package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// FeeService manages provider fees and broadcasts every change so running
// instances pick it up without a restart.
type FeeService struct {
	store  domain.FeeStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewFeeService creates a FeeService.
func NewFeeService(store domain.FeeStore, bus domain.SignalBus, logger *slog.Logger) *FeeService {
	return &FeeService{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "fee_service")),
	}
}

// List returns every fee.
func (s *FeeService) List(ctx context.Context) ([]domain.Fee, error) {
	fees, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee_service: list: %w", err)
	}
	return fees, nil
}

// Upsert stores fee and publishes it on fees.<provider>.<service>.update.
// A failed publish is logged; the stored fee is still returned.
func (s *FeeService) Upsert(ctx context.Context, fee domain.Fee) (domain.Fee, error) {
	fee.Service = strings.TrimSpace(fee.Service)
	fee.ServiceProvider = strings.TrimSpace(fee.ServiceProvider)
	if fee.Service == "" || fee.ServiceProvider == "" {
		return domain.Fee{}, domain.NewInputValidationError("service and serviceProvider are required")
	}
	if fee.Rate.IsNegative() || fee.Fixed.IsNegative() {
		return domain.Fee{}, domain.NewInputValidationError("fee rate and fixed must not be negative")
	}

	stored, err := s.store.Upsert(ctx, fee)
	if err != nil {
		return domain.Fee{}, fmt.Errorf("fee_service: upsert %s/%s: %w", fee.ServiceProvider, fee.Service, err)
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return stored, fmt.Errorf("fee_service: marshal fee: %w", err)
	}
	topic := domain.FeeTopic(stored.ServiceProvider, stored.Service)
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		s.logger.WarnContext(ctx, "fee_service: publish fee update failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "fee updated",
		slog.String("provider", stored.ServiceProvider),
		slog.String("service", stored.Service),
		slog.String("rate", stored.Rate.String()),
		slog.String("fixed", stored.Fixed.String()),
	)
	return stored, nil
}

// LoadFees returns the fees of provider for the given services. Services
// without a stored fee are absent from the map.
func (s *FeeService) LoadFees(ctx context.Context, provider string, services []string) (map[string]*domain.Fee, error) {
	fees, err := s.store.Find(ctx, provider, services)
	if err != nil {
		return nil, fmt.Errorf("fee_service: load %s fees: %w", provider, err)
	}
	out := make(map[string]*domain.Fee, len(fees))
	for i := range fees {
		out[fees[i].Service] = &fees[i]
	}
	return out, nil
}
