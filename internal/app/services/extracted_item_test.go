package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"audit-agent/internal/app/models"
)

func payload(category, topic, amount string) models.ExtractedItemPayload {
	return models.ExtractedItemPayload{
		EventCategory:  category,
		Topic:          topic,
		AmountInvolved: models.AmountText(amount),
	}
}

func TestSaveItemsPersistsAndMarksAnalyzed(t *testing.T) {
	s := newTestStore(t)
	f := s.addFile(t, 1, "up-1")

	large := payload("大额资金", "设备采购", "¥3,000,000.50")
	large.Departments = models.StringList{"财务部", "采购部"}
	inputs := []models.ItemInput{
		{FileID: f.ID, ExtractedItemPayload: payload("重大决策", "年度预算", "")},
		{FileID: f.ID, ExtractedItemPayload: large},
	}

	report, err := s.svc.SaveItems(context.Background(), 1, inputs)
	if err != nil {
		t.Fatalf("SaveItems: %v", err)
	}
	if report.FailedIndex != -1 || len(report.Saved) != 2 {
		t.Fatalf("report = %+v", report)
	}

	rows, err := s.items.ListByFile(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].AmountInvolved != nil {
		t.Fatalf("empty amount stored as %v", *rows[0].AmountInvolved)
	}
	if rows[1].AmountInvolved == nil || *rows[1].AmountInvolved != 3000000.5 {
		t.Fatalf("amount = %v", rows[1].AmountInvolved)
	}
	if !reflect.DeepEqual([]string(rows[1].Departments), []string{"财务部", "采购部"}) {
		t.Fatalf("departments = %v", rows[1].Departments)
	}
	if rows[1].ProjectID != 1 || rows[1].EventCategory != models.CategoryLargeAmount {
		t.Fatalf("row = %+v", rows[1])
	}

	got, err := s.files.GetByID(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsAnalyzed {
		t.Fatal("file not marked analyzed")
	}
}

func TestSaveItemsRejectsFileOfAnotherProject(t *testing.T) {
	s := newTestStore(t)
	f := s.addFile(t, 2, "up-2")

	report, err := s.svc.SaveItems(context.Background(), 1, []models.ItemInput{
		{FileID: f.ID, ExtractedItemPayload: payload("重大决策", "越权", "")},
	})
	if !errors.Is(err, ErrFileNotOwned) {
		t.Fatalf("err = %v, want ErrFileNotOwned", err)
	}
	if report.FailedIndex != 0 || len(report.Saved) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if n := s.countItems(t); n != 0 {
		t.Fatalf("%d rows inserted", n)
	}
	got, _ := s.files.GetByID(f.ID)
	if got.IsAnalyzed {
		t.Fatal("foreign file marked analyzed")
	}
}

func TestSaveItemsStopsAtFirstFailure(t *testing.T) {
	s := newTestStore(t)
	f := s.addFile(t, 1, "up-3")

	report, err := s.svc.SaveItems(context.Background(), 1, []models.ItemInput{
		{FileID: f.ID, ExtractedItemPayload: payload("重大项目", "第一条", "100")},
		{FileID: f.ID, ExtractedItemPayload: payload("其他", "第二条", "")},
		{FileID: f.ID, ExtractedItemPayload: payload("重大项目", "第三条", "")},
	})
	if !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("err = %v, want ErrInvalidCategory", err)
	}
	if report.FailedIndex != 1 || len(report.Saved) != 1 || report.Saved[0].Topic != "第一条" {
		t.Fatalf("report = %+v", report)
	}
	if n := s.countItems(t); n != 1 {
		t.Fatalf("rows = %d, earlier item must stay", n)
	}
}

func TestSaveItemsEnglishCategoryKey(t *testing.T) {
	s := newTestStore(t)
	f := s.addFile(t, 1, "up-4")

	_, err := s.svc.SaveItems(context.Background(), 1, []models.ItemInput{
		{FileID: f.ID, ExtractedItemPayload: payload("personnelAppointment", "任命", "")},
	})
	if err != nil {
		t.Fatal(err)
	}
	groups, err := s.svc.ListGroupedByFile(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups.PersonnelAppointments) != 1 || groups.PersonnelAppointments[0].EventCategory != "重要人事任免" {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestSaveItemsEmptyBatch(t *testing.T) {
	s := newTestStore(t)
	report, err := s.svc.SaveItems(context.Background(), 1, nil)
	if err != nil || report.FailedIndex != -1 || len(report.Saved) != 0 {
		t.Fatalf("report = %+v, err = %v", report, err)
	}
}

func TestSaveItemsLockCancelled(t *testing.T) {
	s := newTestStore(t)
	f := s.addFile(t, 1, "up-5")

	unlock, err := s.svc.locker.Lock(context.Background(), "audit:file:1:items")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := s.svc.SaveItems(ctx, 1, []models.ItemInput{
		{FileID: f.ID, ExtractedItemPayload: payload("重大决策", "被锁", "")},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if report.FailedIndex != 0 || s.countItems(t) != 0 {
		t.Fatalf("report = %+v", report)
	}
}
