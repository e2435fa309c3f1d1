package storage

import "testing"

func TestTableFromKey(t *testing.T) {
	got, err := TableFromKey("/orders/date=2026-02-19/part-1.parquet")
	if err != nil {
		t.Fatalf("TableFromKey() error = %v", err)
	}
	if got != "orders" {
		t.Fatalf("TableFromKey() = %q", got)
	}
}

func TestTableFromKeyRejectsRootObjects(t *testing.T) {
	if _, err := TableFromKey("orders.parquet"); err == nil {
		t.Fatal("expected missing table directory error")
	}
}

func TestTableFromKeyRejectsInvalidTableName(t *testing.T) {
	if _, err := TableFromKey("../oops/part.parquet"); err == nil {
		t.Fatal("expected invalid table name error")
	}
	if _, err := TableFromKey("order-items/part.parquet"); err == nil {
		t.Fatal("expected invalid table name error")
	}
}

func TestTableFilesGroupsAndSkipsNonParquet(t *testing.T) {
	grouped, err := TableFiles([]ObjectInfo{
		{Key: "orders/b.parquet", Size: 2},
		{Key: "orders/a.parquet", Size: 1},
		{Key: "orders/_SUCCESS"},
		{Key: "customers/part-0.PARQUET", Size: 3},
	})
	if err != nil {
		t.Fatalf("TableFiles() error = %v", err)
	}
	if len(grouped) != 2 {
		t.Fatalf("tables = %d", len(grouped))
	}
	orders := grouped["orders"]
	if len(orders) != 2 || orders[0].Key != "orders/a.parquet" {
		t.Fatalf("orders = %#v", orders)
	}
	if len(grouped["customers"]) != 1 {
		t.Fatalf("customers = %#v", grouped["customers"])
	}
}
