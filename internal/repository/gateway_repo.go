package repository

import (
	"context"
	"errors"

	"ewallet/internal/model"

	"gorm.io/gorm"
)

type GatewayRepository struct {
	db *gorm.DB
}

func NewGatewayRepository(db *gorm.DB) *GatewayRepository {
	return &GatewayRepository{db: db}
}

func (r *GatewayRepository) Create(ctx context.Context, gt *model.GatewayTransaction) error {
	return r.db.WithContext(ctx).Create(gt).Error
}

func (r *GatewayRepository) GetAcceptedByRequestID(ctx context.Context, requestID string) (*model.GatewayTransaction, error) {
	var gt model.GatewayTransaction
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND status = ?", requestID, model.GatewayStatusSuccess).
		Order("id DESC").
		First(&gt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gt, nil
}
