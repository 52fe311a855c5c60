package checkout

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/model"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
)

// AddressGateway is the address part of the REST API.
type AddressGateway interface {
	ListAddresses(ctx context.Context, token string) ([]model.Address, error)
	CreateAddress(ctx context.Context, token string, req *model.AddressRequest) (*model.Address, error)
	UpdateAddress(ctx context.Context, token, id string, req *model.AddressRequest) (*model.Address, error)
	DeleteAddress(ctx context.Context, token, id string) error
	SetDefaultAddress(ctx context.Context, token, id string) error
}

// AddressService manages saved addresses. Mutations of one address never
// overlap: a second mutation while one is pending fails with
// model.ErrMutationInProgress.
type AddressService struct {
	gateway   AddressGateway
	validator *Validator
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewAddressService creates an address service.
func NewAddressService(gateway AddressGateway, validator *Validator, logger zerolog.Logger) *AddressService {
	return &AddressService{
		gateway:   gateway,
		validator: validator,
		logger:    logger.With().Str("service", "address").Logger(),
		pending:   make(map[string]struct{}),
	}
}

// List returns the user's saved addresses.
func (s *AddressService) List(ctx context.Context, token string) ([]model.Address, error) {
	return s.gateway.ListAddresses(ctx, token)
}

// Create validates and saves a new address.
func (s *AddressService) Create(ctx context.Context, token string, in *model.AddressInput, isDefault bool) (*model.Address, error) {
	if err := s.validator.Address(in); err != nil {
		return nil, err
	}

	release, err := s.acquire("new:" + token)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := addressRequest(in, isDefault)
	if err != nil {
		return nil, err
	}

	addr, err := s.gateway.CreateAddress(ctx, token, req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create address")
		return nil, err
	}
	s.logger.Info().Str("address_id", addr.ID).Msg("address created")
	return addr, nil
}

// Update validates and replaces a saved address.
func (s *AddressService) Update(ctx context.Context, token, id string, in *model.AddressInput, isDefault bool) (*model.Address, error) {
	if err := s.validator.Address(in); err != nil {
		return nil, err
	}

	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := addressRequest(in, isDefault)
	if err != nil {
		return nil, err
	}

	addr, err := s.gateway.UpdateAddress(ctx, token, id, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("address_id", id).Msg("failed to update address")
		return nil, err
	}
	return addr, nil
}

// Delete removes a saved address.
func (s *AddressService) Delete(ctx context.Context, token, id string) error {
	release, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if err := s.gateway.DeleteAddress(ctx, token, id); err != nil {
		s.logger.Warn().Err(err).Str("address_id", id).Msg("failed to delete address")
		return err
	}
	return nil
}

// SetDefault marks a saved address as the default.
func (s *AddressService) SetDefault(ctx context.Context, token, id string) error {
	release, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	return s.gateway.SetDefaultAddress(ctx, token, id)
}

func (s *AddressService) acquire(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.pending[key]; busy {
		return nil, model.ErrMutationInProgress
	}
	s.pending[key] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.pending, key)
		s.mu.Unlock()
	}, nil
}

func addressRequest(in *model.AddressInput, isDefault bool) (*model.AddressRequest, error) {
	var req model.AddressRequest
	if err := copier.Copy(&req, in); err != nil {
		return nil, fmt.Errorf("failed to map address: %w", err)
	}
	req.IsDefault = isDefault
	return &req, nil
}

// pickAddress returns the default saved address, or the first one.
func pickAddress(addrs []model.Address) (model.Address, bool) {
	if len(addrs) == 0 {
		return model.Address{}, false
	}
	for _, a := range addrs {
		if a.IsDefault {
			return a, true
		}
	}
	return addrs[0], true
}
