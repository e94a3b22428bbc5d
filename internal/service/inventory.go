package service

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
	"github.com/kjstillabower/smartstore-copilot/internal/observability"
)

// StockColumn is the inventory column holding the on-hand quantity.
const StockColumn = "stock"

// InventoryService serves the inventory snapshot.
type InventoryService struct {
	path      string
	threshold int
}

// NewInventoryService reads inventory from path; items with stock below
// threshold are reported as low.
func NewInventoryService(path string, threshold int) *InventoryService {
	return &InventoryService{path: path, threshold: threshold}
}

// LowStockReport is the result of a low-stock query.
type LowStockReport struct {
	Threshold int
	Items     []models.Record
	Invalid   int // records whose stock is not an integer
	Skipped   int // malformed CSV rows
}

// Status returns every inventory record.
func (s *InventoryService) Status(ctx context.Context) (models.Snapshot, error) {
	return readSnapshot(ctx, "inventory", s.path, "Inventory file not found")
}

// LowStock returns the records below the configured threshold.
func (s *InventoryService) LowStock(ctx context.Context) (LowStockReport, error) {
	snap, err := s.Status(ctx)
	if err != nil {
		return LowStockReport{}, err
	}
	low, invalid := LowStock(snap.Records, s.threshold)
	observability.InventoryLowStockItems.Set(float64(len(low)))
	if invalid > 0 {
		loggerFromContext(ctx).Warn("inventory rows with non-numeric stock", zap.Int("invalid", invalid))
	}
	return LowStockReport{
		Threshold: s.threshold,
		Items:     low,
		Invalid:   invalid,
		Skipped:   snap.Skipped,
	}, nil
}

// LowStock returns, in input order, the records whose stock is strictly less
// than threshold. A missing or empty stock counts as 0. Records whose stock is
// not a base-10 integer are left out and counted in invalid.
func LowStock(records []models.Record, threshold int) (low []models.Record, invalid int) {
	low = make([]models.Record, 0)
	for _, r := range records {
		raw, _ := r.Get(StockColumn)
		raw = strings.TrimSpace(raw)
		stock := 0
		if raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				invalid++
				continue
			}
			stock = n
		}
		if stock < threshold {
			low = append(low, r)
		}
	}
	return low, invalid
}
