package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/value"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestOrder creates a started order with two sub-orders and one
// history item.
func createTestOrder(id string) *order.Order {
	o := order.New(id)
	o.State = order.StateStarted
	o.LastSeq = 3
	o.Currency = "VND"
	o.CreatedAt = testNow.Add(-time.Hour)
	o.UpdatedAt = testNow
	o.SubOrders.Put(order.SubOrder{
		DateKey: "2024-05-03",
		State:   order.SubOrderActive,
		Fields:  value.Object{"quantity": value.Int(3), "unitPrice": value.Int(45000)},
	})
	o.SubOrders.Put(order.SubOrder{
		DateKey: "2024-05-02",
		State:   order.SubOrderActive,
		Fields:  value.Object{"quantity": value.Int(1), "note": value.String("no onions")},
	})
	_ = o.SubOrders.AppendHistory(testChange(3, "2024-05-03", "quantity", value.Int(2), value.Int(3)))
	return o
}

func testChange(seq int64, date order.DateKey, field string, prev, next value.Value) order.ChangeItem {
	return order.ChangeItem{
		Seq:       seq,
		DateKey:   date,
		FieldName: field,
		Previous:  prev,
		New:       next,
		ChangedBy: "booker-7",
		ChangedAt: testNow,
	}
}
