package doctor

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/healtheasy/booking-engine/internal/auth"
	"github.com/healtheasy/booking-engine/internal/model"
	"github.com/healtheasy/booking-engine/internal/store"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
)

// Service is the doctor collection hook. Doctors are delivered
// name-ascending; appointments reference them by id only.
type Service struct {
	store    store.Store
	validate *validator.Validate
}

func NewService(st store.Store) *Service {
	return &Service{store: st, validate: validator.New()}
}

// Create adds a doctor to the directory. Staff-only.
func (s *Service) Create(ctx context.Context, req *model.CreateDoctorRequest) (string, error) {
	if err := auth.Require(ctx, auth.RoleAdmin); err != nil {
		return "", err
	}
	if err := s.validate.Struct(req); err != nil {
		return "", apperrors.InvalidRequest("invalid doctor", err)
	}

	doc, err := model.Encode(model.Doctor{
		Name:      req.Name,
		Specialty: req.Specialty,
		Phone:     req.Phone,
		Email:     req.Email,
		Status:    model.StatusActive,
	})
	if err != nil {
		return "", err
	}

	id, err := s.store.Create(ctx, store.Doctors, doc)
	if err != nil {
		return "", fmt.Errorf("failed to create doctor: %w", err)
	}
	return id, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Doctor, error) {
	doc, err := s.store.Get(ctx, store.Doctors, id)
	if err != nil {
		return nil, err
	}
	var d model.Doctor
	if err := model.Decode(doc, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) List(ctx context.Context) ([]*model.Doctor, error) {
	docs, err := s.store.List(ctx, store.Doctors)
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	doctors := make([]*model.Doctor, 0, len(docs))
	for _, doc := range docs {
		var d model.Doctor
		if err := model.Decode(doc, &d); err != nil {
			return nil, err
		}
		doctors = append(doctors, &d)
	}
	return doctors, nil
}

func (s *Service) Subscribe(ctx context.Context, fn func([]*model.Doctor)) (store.Unsubscribe, error) {
	return s.store.Subscribe(ctx, store.Doctors, func(docs []store.Document) {
		doctors := make([]*model.Doctor, 0, len(docs))
		for _, doc := range docs {
			var d model.Doctor
			if err := model.Decode(doc, &d); err != nil {
				continue
			}
			doctors = append(doctors, &d)
		}
		fn(doctors)
	})
}
