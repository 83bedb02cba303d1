package patient

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/healtheasy/booking-engine/internal/model"
	"github.com/healtheasy/booking-engine/internal/store"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
)

// Service is the thin patient collection hook: record creation defaults and
// reads, no invariant logic.
type Service struct {
	store    store.Store
	validate *validator.Validate
}

func NewService(st store.Store) *Service {
	return &Service{store: st, validate: validator.New()}
}

func (s *Service) Create(ctx context.Context, req *model.CreatePatientRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", apperrors.InvalidRequest("invalid patient", err)
	}

	doc, err := model.Encode(model.Patient{
		Name:      req.Name,
		Age:       req.Age,
		Gender:    req.Gender,
		Phone:     req.Phone,
		Condition: req.Condition,
		Status:    model.StatusActive,
	})
	if err != nil {
		return "", err
	}

	id, err := s.store.Create(ctx, store.Patients, doc)
	if err != nil {
		return "", fmt.Errorf("failed to create patient: %w", err)
	}
	return id, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Patient, error) {
	doc, err := s.store.Get(ctx, store.Patients, id)
	if err != nil {
		return nil, err
	}
	var p model.Patient
	if err := model.Decode(doc, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) List(ctx context.Context) ([]*model.Patient, error) {
	docs, err := s.store.List(ctx, store.Patients)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	patients := make([]*model.Patient, 0, len(docs))
	for _, doc := range docs {
		var p model.Patient
		if err := model.Decode(doc, &p); err != nil {
			return nil, err
		}
		patients = append(patients, &p)
	}
	return patients, nil
}

// Subscribe delivers the patient collection newest-first, immediately and on
// every mutation.
func (s *Service) Subscribe(ctx context.Context, fn func([]*model.Patient)) (store.Unsubscribe, error) {
	return s.store.Subscribe(ctx, store.Patients, func(docs []store.Document) {
		patients := make([]*model.Patient, 0, len(docs))
		for _, doc := range docs {
			var p model.Patient
			if err := model.Decode(doc, &p); err != nil {
				continue
			}
			patients = append(patients, &p)
		}
		fn(patients)
	})
}

func (s *Service) SetStatus(ctx context.Context, id, status string) error {
	if status != model.StatusActive && status != model.StatusInactive {
		return apperrors.InvalidRequest("invalid patient status: "+status, nil)
	}
	return s.store.Update(ctx, store.Patients, id, store.Document{"status": status})
}
