package doctor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healtheasy/booking-engine/internal/auth"
	"github.com/healtheasy/booking-engine/internal/model"
	"github.com/healtheasy/booking-engine/internal/service/doctor"
	"github.com/healtheasy/booking-engine/internal/store/memory"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
)

func TestCreateDefaultsToActive(t *testing.T) {
	ctx := context.Background()
	svc := doctor.NewService(memory.New())

	id, err := svc.Create(ctx, &model.CreateDoctorRequest{
		Name: "Dr. Smith", Specialty: "Cardiology", Email: "smith@clinic.test",
	})
	require.NoError(t, err)

	d, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Smith", d.Name)
	assert.Equal(t, "Cardiology", d.Specialty)
	assert.Equal(t, model.StatusActive, d.Status)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := doctor.NewService(memory.New())

	_, err := svc.Create(ctx, &model.CreateDoctorRequest{Specialty: "Cardiology"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))

	_, err = svc.Create(ctx, &model.CreateDoctorRequest{Name: "Dr. Smith"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))

	_, err = svc.Create(ctx, &model.CreateDoctorRequest{
		Name: "Dr. Smith", Specialty: "Cardiology", Email: "not-an-email",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidRequest))
}

func TestCreateForbiddenForDoctors(t *testing.T) {
	svc := doctor.NewService(memory.New())
	ctx := auth.WithRole(context.Background(), auth.RoleDoctor)

	_, err := svc.Create(ctx, &model.CreateDoctorRequest{Name: "Dr. Smith", Specialty: "Cardiology"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestListOrdersByName(t *testing.T) {
	ctx := context.Background()
	svc := doctor.NewService(memory.New())

	for _, name := range []string{"Dr. Young", "Dr. Abbott", "Dr. Mills"} {
		_, err := svc.Create(ctx, &model.CreateDoctorRequest{Name: name, Specialty: "General"})
		require.NoError(t, err)
	}

	doctors, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, doctors, 3)
	assert.Equal(t, "Dr. Abbott", doctors[0].Name)
	assert.Equal(t, "Dr. Mills", doctors[1].Name)
	assert.Equal(t, "Dr. Young", doctors[2].Name)
}
