// Package report renders the device roster as a spreadsheet.
package report

import (
	"bytes"
	"os"
	"sort"
	"time"

	"github.com/httprunner/depsync"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const (
	devicesSheet = "devices"
	summarySheet = "summary"
	dateLayout   = "2006-01-02 15:04:05"
)

var deviceHeaders = []string{
	"Serial Number",
	"Model",
	"Description",
	"Color",
	"Asset Tag",
	"OS",
	"Device Family",
	"Profile Status",
	"Profile UUID",
	"Profile Assigned",
	"Device Assigned",
	"Assigned By",
}

// BuildRosterXLSX renders devices into a workbook with a device sheet and a
// per profile status summary.
func BuildRosterXLSX(devices []depsync.Device, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", devicesSheet); err != nil {
		return nil, errors.Wrap(err, "report: rename sheet")
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, errors.Wrap(err, "report: create summary sheet")
	}

	if err := f.SetSheetRow(devicesSheet, "A1", &deviceHeaders); err != nil {
		return nil, errors.Wrap(err, "report: write header")
	}
	for i, dev := range devices {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, errors.Wrap(err, "report: resolve cell")
		}
		row := []any{
			dev.SerialNumber,
			dev.Model,
			dev.Description,
			dev.Color,
			dev.AssetTag,
			dev.OS,
			dev.DeviceFamily,
			string(dev.ProfileStatus),
			dev.ProfileUUID,
			formatTime(dev.ProfileAssignTime),
			formatTime(dev.DeviceAssignedDate),
			dev.DeviceAssignedBy,
		}
		if err := f.SetSheetRow(devicesSheet, cell, &row); err != nil {
			return nil, errors.Wrapf(err, "report: write row for %s", dev.SerialNumber)
		}
	}
	if err := f.SetColWidth(devicesSheet, "A", "L", 18); err != nil {
		return nil, errors.Wrap(err, "report: set column width")
	}

	counts := make(map[string]int)
	for _, dev := range devices {
		status := string(dev.ProfileStatus)
		if status == "" {
			status = "unknown"
		}
		counts[status]++
	}
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	_ = f.SetCellValue(summarySheet, "A1", "Device Roster")
	_ = f.SetCellValue(summarySheet, "A2", "Generated")
	_ = f.SetCellValue(summarySheet, "B2", generatedAt.UTC().Format(dateLayout))
	_ = f.SetCellValue(summarySheet, "A3", "Devices")
	_ = f.SetCellValue(summarySheet, "B3", len(devices))
	_ = f.SetCellValue(summarySheet, "A5", "Profile Status")
	_ = f.SetCellValue(summarySheet, "B5", "Count")
	for i, status := range statuses {
		row := i + 6
		statusCell, _ := excelize.CoordinatesToCellName(1, row)
		countCell, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(summarySheet, statusCell, status)
		_ = f.SetCellValue(summarySheet, countCell, counts[status])
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, "report: encode workbook")
	}
	return buf.Bytes(), nil
}

// WriteRosterXLSX renders devices and writes the workbook to path.
func WriteRosterXLSX(path string, devices []depsync.Device, generatedAt time.Time) error {
	raw, err := BuildRosterXLSX(devices, generatedAt)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "report: write %s", path)
	}
	return nil
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateLayout)
}
