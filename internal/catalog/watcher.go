package catalog

import (
	"context"
	"fmt"

	"github.com/RaufCode/venella-pharmacy/internal/metrics"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
)

// DefaultLowStockThreshold is the stock level at or below which staff are alerted.
const DefaultLowStockThreshold = 10

// Watcher alerts staff after stock writes that leave a product at or below the
// threshold. It fires on every qualifying write, not only when the level is crossed.
type Watcher struct {
	sink      notifications.Sink
	metrics   metrics.Recorder
	threshold int
}

func NewWatcher(sink notifications.Sink, rec metrics.Recorder, threshold int) *Watcher {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Watcher{sink: sink, metrics: rec, threshold: threshold}
}

// Check emits one PRODUCT_STOCK_ALERT when p is low and reports whether it did.
func (w *Watcher) Check(ctx context.Context, p Product) bool {
	if p.Stock > w.threshold {
		return false
	}
	notifications.Send(ctx, w.sink, notifications.ForStaff(
		notifications.TypeProductStockAlert,
		LowStockMessage(p),
	))
	w.metrics.Count(ctx, metrics.LowStockAlerts, 1)
	return true
}

func LowStockMessage(p Product) string {
	return fmt.Sprintf("Product %s is running low on stock. Only %d left.", p.Name, p.Stock)
}
