package usecase

import (
	"context"
	"time"

	"callcenter-service/internal/domain"
	"callcenter-service/internal/repository"
	"callcenter-service/pkg/id"

	"go.uber.org/zap"
)

type ContactUsecase struct {
	contacts repository.ContactRepository
	ids      *id.Snowflake
	logger   *zap.Logger
	now      func() time.Time
}

func NewContactUsecase(contacts repository.ContactRepository, ids *id.Snowflake, logger *zap.Logger) *ContactUsecase {
	return &ContactUsecase{
		contacts: contacts,
		ids:      ids,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ContactUsecase) Create(ctx context.Context, in domain.NewContact) (*domain.Contact, error) {
	n, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	now := uc.now()
	c := &domain.Contact{
		ID:            uc.ids.Generate(),
		SerialNo:      n.SerialNo,
		PMNo:          n.PMNo,
		EnrollmentNo:  n.EnrollmentNo,
		Name:          n.Name,
		Phones:        n.Phones,
		Address:       n.Address,
		PhoneStatuses: []domain.PhoneStatus{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.contacts.Create(ctx, c); err != nil {
		return nil, err
	}
	uc.logger.Info("contact created", zap.String("contact_id", c.ID), zap.Int64("serial_no", c.SerialNo))
	return c, nil
}
