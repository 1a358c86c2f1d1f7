package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/httprunner/depsync"
	"github.com/xuri/excelize/v2"
)

func TestBuildRosterXLSX(t *testing.T) {
	assigned := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	devices := []depsync.Device{
		{SerialNumber: "A", Model: "iMac", ProfileStatus: depsync.ProfileStatusAssigned, ProfileAssignTime: assigned},
		{SerialNumber: "B", Model: "iPad", ProfileStatus: depsync.ProfileStatusEmpty},
		{SerialNumber: "C", Model: "iPhone", ProfileStatus: depsync.ProfileStatusAssigned},
	}

	raw, err := BuildRosterXLSX(devices, assigned)
	if err != nil {
		t.Fatalf("BuildRosterXLSX failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(devicesSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Serial Number" || rows[1][0] != "A" || rows[1][7] != "assigned" {
		t.Fatalf("unexpected rows: %v", rows[:2])
	}
	if rows[1][9] != "2024-05-01 08:30:00" {
		t.Fatalf("profile assign time = %q", rows[1][9])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatalf("GetRows summary failed: %v", err)
	}
	if summary[2][1] != "3" {
		t.Fatalf("device count = %v", summary[2])
	}
	if summary[5][0] != "assigned" || summary[5][1] != "2" || summary[6][0] != "empty" {
		t.Fatalf("unexpected summary: %v", summary)
	}
}

func TestWriteRosterXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	if err := WriteRosterXLSX(path, nil, time.Now()); err != nil {
		t.Fatalf("WriteRosterXLSX failed: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(devicesSheet)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected header only, got %v (%v)", rows, err)
	}
}
