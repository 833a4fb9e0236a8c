package store

import (
	"context"
	"errors"
	"testing"

	"dataplane-backend/internal/metadata"
)

func testRegistry() *metadata.Registry {
	reg := metadata.NewRegistry()
	reg.Register(&metadata.Entity{
		Name:       "customers",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "uuid"},
			{Name: "name", Type: "string"},
			{Name: "tier", Type: "string", Enum: []string{"free", "pro"}},
		},
	})
	reg.Register(&metadata.Entity{
		Name:       "orders",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
		Timestamps: true,
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "customer_id", Type: "uuid"},
			{Name: "status", Type: "string", Default: "pending"},
			{Name: "total", Type: "decimal"},
		},
		Relations: []metadata.Relation{
			{Name: "customer", Kind: metadata.BelongsTo, Target: "customers", LocalKey: "customer_id", ForeignKey: "id"},
		},
	})
	return reg
}

func seedOrders(t *testing.T, m *Memory, totals ...float64) {
	t.Helper()
	ctx := context.Background()
	for i, total := range totals {
		status := "paid"
		if i%2 == 1 {
			status = "pending"
		}
		if _, err := m.Create(ctx, "orders", map[string]any{"status": status, "total": total}); err != nil {
			t.Fatalf("create order: %v", err)
		}
	}
}

func TestMemoryCreateAssignsKeysAndDefaults(t *testing.T) {
	m := NewMemory(testRegistry())
	ctx := context.Background()

	rec, err := m.Create(ctx, "orders", map[string]any{"total": 10.0})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec["id"] != int64(1) {
		t.Fatalf("id = %v, want sequence 1", rec["id"])
	}
	if rec["status"] != "pending" {
		t.Fatalf("status = %v, want default", rec["status"])
	}
	if rec["created_at"] == nil || rec["updated_at"] == nil {
		t.Fatal("expected timestamps")
	}

	cust, err := m.Create(ctx, "customers", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Create customer: %v", err)
	}
	if s, ok := cust["id"].(string); !ok || s == "" {
		t.Fatalf("uuid pk = %v", cust["id"])
	}
}

func TestMemoryFindOneClonesRecords(t *testing.T) {
	m := NewMemory(testRegistry())
	ctx := context.Background()
	created, _ := m.Create(ctx, "orders", map[string]any{"total": 1.0})

	got, err := m.FindOne(ctx, "orders", map[string]any{"id": created["id"]})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	got["status"] = "mutated"

	again, _ := m.FindOne(ctx, "orders", map[string]any{"id": created["id"]})
	if again["status"] == "mutated" {
		t.Fatal("caller mutation leaked into the store")
	}

	if _, err := m.FindOne(ctx, "orders", map[string]any{"id": 999}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryFindManyFilterSortPaginate(t *testing.T) {
	m := NewMemory(testRegistry())
	seedOrders(t, m, 50, 10, 40, 20, 30)

	res, err := m.FindMany(context.Background(), "orders", Query{
		Where:  map[string]any{"total.gte": 20},
		Sort:   []Sort{{Field: "total", Desc: true}},
		Limit:  2,
		Offset: 1,
	})
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if res.Total != 4 {
		t.Fatalf("Total = %d, want 4", res.Total)
	}
	if len(res.Records) != 2 {
		t.Fatalf("page size = %d, want 2", len(res.Records))
	}
	// Full ordering 50,40,30,20; offset 1 → 40,30.
	if res.Records[0]["total"] != 40.0 || res.Records[1]["total"] != 30.0 {
		t.Fatalf("page = %v, %v", res.Records[0]["total"], res.Records[1]["total"])
	}
	if !res.HasMore {
		t.Fatal("expected HasMore")
	}
}

func TestMemoryFindManyMultiKeySort(t *testing.T) {
	m := NewMemory(testRegistry())
	seedOrders(t, m, 10, 10, 5)

	res, err := m.FindMany(context.Background(), "orders", Query{
		Sort: []Sort{{Field: "total"}, {Field: "id", Desc: true}},
	})
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	// total asc, then id desc within equal totals.
	ids := []any{res.Records[0]["id"], res.Records[1]["id"], res.Records[2]["id"]}
	if ids[0] != int64(3) || ids[1] != int64(2) || ids[2] != int64(1) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestMemoryUpdatePreservesPrimaryKey(t *testing.T) {
	m := NewMemory(testRegistry())
	ctx := context.Background()
	created, _ := m.Create(ctx, "orders", map[string]any{"total": 1.0})

	rec, err := m.Update(ctx, "orders", map[string]any{"id": created["id"]}, map[string]any{
		"id":     int64(99),
		"status": "paid",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec["id"] != created["id"] {
		t.Fatalf("pk changed to %v", rec["id"])
	}
	if rec["status"] != "paid" {
		t.Fatalf("status = %v", rec["status"])
	}

	if _, err := m.Update(ctx, "orders", map[string]any{"id": 999}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDeleteAndCount(t *testing.T) {
	m := NewMemory(testRegistry())
	ctx := context.Background()
	seedOrders(t, m, 10, 20, 30)

	if err := m.Delete(ctx, "orders", map[string]any{"status": "paid"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := m.Count(ctx, "orders", nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1 pending survivor", n)
	}
}

func TestMemorySeedRespectsDependencies(t *testing.T) {
	reg := testRegistry()
	m := NewMemory(reg)
	ctx := context.Background()

	if err := m.Seed(ctx, map[string]int{"orders": 10, "customers": 3}, reg); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	customers, _ := m.FindMany(ctx, "customers", Query{})
	if customers.Total != 3 {
		t.Fatalf("customers = %d", customers.Total)
	}
	valid := make(map[string]bool)
	for _, c := range customers.Records {
		valid[c["id"].(string)] = true
	}

	orders, _ := m.FindMany(ctx, "orders", Query{})
	if orders.Total != 10 {
		t.Fatalf("orders = %d", orders.Total)
	}
	for _, o := range orders.Records {
		fk, ok := o["customer_id"].(string)
		if !ok || !valid[fk] {
			t.Fatalf("order %v has dangling customer_id %v", o["id"], o["customer_id"])
		}
	}
}

func TestMemoryReset(t *testing.T) {
	m := NewMemory(testRegistry())
	ctx := context.Background()
	seedOrders(t, m, 1)

	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	n, _ := m.Count(ctx, "orders", nil)
	if n != 0 {
		t.Fatalf("Count after reset = %d", n)
	}

	// Sequences restart too.
	rec, _ := m.Create(ctx, "orders", nil)
	if rec["id"] != int64(1) {
		t.Fatalf("id after reset = %v", rec["id"])
	}
}
