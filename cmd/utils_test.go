package main

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/httprunner/depsync"
)

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", " journal.sqlite ", "other"); got != "journal.sqlite" {
		t.Fatalf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty("", " "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestSplitSerials(t *testing.T) {
	got := splitSerials([]string{"C02AAA, C02BBB", "", " C02CCC "})
	want := []string{"C02AAA", "C02BBB", "C02CCC"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitSerials = %v, want %v", got, want)
	}
}

func TestFilterByStatusKeepsInput(t *testing.T) {
	devices := []depsync.Device{
		{SerialNumber: "A", ProfileStatus: depsync.ProfileStatusAssigned},
		{SerialNumber: "B", ProfileStatus: depsync.ProfileStatusEmpty},
		{SerialNumber: "C", ProfileStatus: depsync.ProfileStatusAssigned},
	}
	got := filterByStatus(devices, depsync.ProfileStatusAssigned)
	if len(got) != 2 || got[0].SerialNumber != "A" || got[1].SerialNumber != "C" {
		t.Fatalf("unexpected filter result: %+v", got)
	}
	if devices[1].SerialNumber != "B" {
		t.Fatal("filter must not modify its input")
	}
}

func TestPrintDeviceTable(t *testing.T) {
	var buf bytes.Buffer
	err := printDeviceTable(&buf, []depsync.Device{{SerialNumber: "C02XYZ", Model: "MacBook Pro", ProfileStatus: depsync.ProfileStatusPushed}})
	if err != nil {
		t.Fatalf("printDeviceTable failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "C02XYZ") || !strings.Contains(lines[1], "pushed") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestConfigureLoggingRejectsUnknownLevel(t *testing.T) {
	if err := configureLogging("loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := configureLogging("debug", false); err != nil {
		t.Fatalf("configureLogging(debug) failed: %v", err)
	}
}
