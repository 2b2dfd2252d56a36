package repository

import (
	"errors"

	"github.com/mercadito/tienda/app/models"
	"gorm.io/gorm"
)

// ErrInsufficientStock is returned when a decrement would drive stock below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository backed by GORM
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

func (r *productRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetBySKU(sku string) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("sku = ?", sku).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) Update(product *models.Product) error {
	return r.db.Save(product).Error
}

// DecrementStock atomically subtracts quantity from a product's stock. The
// guard in the WHERE clause keeps stock from going negative under concurrent
// writers.
func (r *productRepository) DecrementStock(productID uint, quantity int) error {
	tx := r.db.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *productRepository) List(offset, limit int) ([]models.Product, error) {
	var products []models.Product
	err := r.db.Order("sku ASC").Offset(offset).Limit(limit).Find(&products).Error
	return products, err
}
