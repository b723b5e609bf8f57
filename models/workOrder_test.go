package models_test

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"bitbucket.org/mmdatafocus/fieldservice_sync/utils"
	"github.com/shopspring/decimal"
)

func TestListCache_PerTenantIsolationAndOverwrite(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	itemsA := []models.WorkOrderSummary{
		{ID: "wo-1", Number: "OS-001", Status: models.WorkOrderStatusOpen, ClientName: "Padaria Central", TotalAmount: decimal.NewFromInt(350)},
		{ID: "wo-2", Number: "OS-002", Status: models.WorkOrderStatusInProgress, ClientName: "Mercado Sol", TotalAmount: decimal.NewFromInt(1200)},
	}
	itemsB := []models.WorkOrderSummary{
		{ID: "wo-9", Number: "OS-900", Status: models.WorkOrderStatusOpen, ClientName: "Oficina Norte"},
	}

	if err := models.CacheWorkOrderList(ctx, "biz-a", itemsA); err != nil {
		t.Fatalf("CacheWorkOrderList: %v", err)
	}
	if err := models.CacheWorkOrderList(ctx, "biz-b", itemsB); err != nil {
		t.Fatalf("CacheWorkOrderList: %v", err)
	}

	gotA, err := models.GetCachedWorkOrderList(ctx, "biz-a")
	if err != nil {
		t.Fatalf("GetCachedWorkOrderList: %v", err)
	}
	if !gotA.FromCache {
		t.Fatal("expected FromCache=true on a cache read")
	}
	if len(gotA.Items) != 2 || gotA.Items[0].ID != "wo-1" {
		t.Fatalf("unexpected tenant-a items: %+v", gotA.Items)
	}

	gotB, err := models.GetCachedWorkOrderList(ctx, "biz-b")
	if err != nil {
		t.Fatalf("GetCachedWorkOrderList: %v", err)
	}
	if len(gotB.Items) != 1 || gotB.Items[0].ID != "wo-9" {
		t.Fatalf("unexpected tenant-b items: %+v", gotB.Items)
	}

	// A fresh fetch replaces the tenant snapshot in place.
	if err := models.CacheWorkOrderList(ctx, "biz-a", itemsA[:1]); err != nil {
		t.Fatalf("CacheWorkOrderList overwrite: %v", err)
	}
	gotA, err = models.GetCachedWorkOrderList(ctx, "biz-a")
	if err != nil {
		t.Fatalf("GetCachedWorkOrderList: %v", err)
	}
	if len(gotA.Items) != 1 {
		t.Fatalf("expected overwrite to 1 item, got %d", len(gotA.Items))
	}
}

func TestListCache_MissingTenant(t *testing.T) {
	setupTestDB(t)
	if _, err := models.GetCachedWorkOrderList(context.Background(), "nobody"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
}

func TestDetailCache_RoundTripAndOverwrite(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	detail := &models.WorkOrderDetail{
		ID:         "wo-5",
		Number:     "OS-005",
		BusinessId: "biz-a",
		Status:     models.WorkOrderStatusOpen,
		ClientName: "Condominio Leste",
		Version:    7,
		Checklist: []models.ChecklistItem{
			{Index: 0, Description: "trocar filtro", Done: false},
			{Index: 1, Description: "testar pressao", Done: true},
		},
	}
	if err := models.CacheWorkOrderDetail(ctx, detail); err != nil {
		t.Fatalf("CacheWorkOrderDetail: %v", err)
	}

	got, err := models.GetCachedWorkOrderDetail(ctx, "wo-5")
	if err != nil {
		t.Fatalf("GetCachedWorkOrderDetail: %v", err)
	}
	if !got.FromCache {
		t.Fatal("expected FromCache=true on a cache read")
	}
	if got.Detail.Version != 7 || len(got.Detail.Checklist) != 2 {
		t.Fatalf("unexpected detail: %+v", got.Detail)
	}

	detail.Version = 8
	detail.Status = models.WorkOrderStatusInProgress
	if err := models.CacheWorkOrderDetail(ctx, detail); err != nil {
		t.Fatalf("CacheWorkOrderDetail overwrite: %v", err)
	}
	got, err = models.GetCachedWorkOrderDetail(ctx, "wo-5")
	if err != nil {
		t.Fatalf("GetCachedWorkOrderDetail: %v", err)
	}
	if got.Detail.Version != 8 || got.Detail.Status != models.WorkOrderStatusInProgress {
		t.Fatalf("expected overwritten snapshot, got %+v", got.Detail)
	}
}

func TestDetailCache_NormalizesClientPhone(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	detail := &models.WorkOrderDetail{
		ID:          "wo-7",
		BusinessId:  "biz-a",
		Status:      models.WorkOrderStatusOpen,
		ClientPhone: "(11) 98765-4321",
		Version:     1,
	}
	if err := models.CacheWorkOrderDetail(ctx, detail); err != nil {
		t.Fatalf("CacheWorkOrderDetail: %v", err)
	}
	got, err := models.GetCachedWorkOrderDetail(ctx, "wo-7")
	if err != nil {
		t.Fatalf("GetCachedWorkOrderDetail: %v", err)
	}
	if got.Detail.ClientPhone != "+5511987654321" {
		t.Fatalf("expected E.164 phone, got %q", got.Detail.ClientPhone)
	}
}

func TestPatchDetail_AppliesMutation(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	detail := &models.WorkOrderDetail{
		ID:         "wo-5",
		BusinessId: "biz-a",
		Status:     models.WorkOrderStatusOpen,
		Version:    3,
	}
	if err := models.CacheWorkOrderDetail(ctx, detail); err != nil {
		t.Fatalf("CacheWorkOrderDetail: %v", err)
	}

	err := models.PatchCachedWorkOrderDetail(ctx, "wo-5", func(d *models.WorkOrderDetail) {
		d.Status = models.WorkOrderStatusDone
	})
	if err != nil {
		t.Fatalf("PatchCachedWorkOrderDetail: %v", err)
	}

	got, _ := models.GetCachedWorkOrderDetail(ctx, "wo-5")
	if got.Detail.Status != models.WorkOrderStatusDone {
		t.Fatalf("expected patched status, got %q", got.Detail.Status)
	}
}

func TestPatchDetail_MissingSnapshotIsNoOp(t *testing.T) {
	setupTestDB(t)
	err := models.PatchCachedWorkOrderDetail(context.Background(), "wo-missing", func(d *models.WorkOrderDetail) {
		t.Fatal("mutate must not run without a snapshot")
	})
	if err != nil {
		t.Fatalf("expected nil for a missing snapshot, got %v", err)
	}
}

func TestClearCache_KeepsQueueAndSession(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	if err := models.CacheWorkOrderList(ctx, "biz-a", []models.WorkOrderSummary{{ID: "wo-1"}}); err != nil {
		t.Fatalf("CacheWorkOrderList: %v", err)
	}
	if _, err := models.EnqueueAction(ctx, "biz-a", models.ActionKindStatusUpdate, "wo-1", 1, map[string]string{"status": models.WorkOrderStatusDone}); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	if err := models.SaveSession(ctx, &models.Session{Token: "tok", BusinessId: "biz-a"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	if err := models.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}

	if _, err := models.GetCachedWorkOrderList(ctx, "biz-a"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected cleared list cache, got %v", err)
	}
	if count, _ := models.CountPendingActions(ctx); count != 1 {
		t.Fatalf("queue must survive a cache clear, got %d actions", count)
	}
	if _, err := models.GetSession(ctx); err != nil {
		t.Fatalf("session must survive a cache clear: %v", err)
	}
}
