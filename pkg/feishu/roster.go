package feishu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/httprunner/depsync"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RosterResult counts the rows written by ExportRoster.
type RosterResult struct {
	Created int
	Updated int
}

// ExportRoster upserts one row per device keyed by serial number. Rows for
// devices no longer registered are left in place.
func (c *RosterClient) ExportRoster(ctx context.Context, devices []depsync.Device, syncedAt time.Time) (RosterResult, error) {
	var result RosterResult
	if c == nil || c.api == nil {
		return result, errors.New("feishu: roster client is nil")
	}
	if len(devices) == 0 {
		return result, nil
	}
	existing, err := c.existingRecords(ctx)
	if err != nil {
		return result, err
	}

	var creates, updates []*larkbitable.AppTableRecord
	for _, dev := range devices {
		fields := c.rowFields(dev, syncedAt)
		builder := larkbitable.NewAppTableRecordBuilder().Fields(fields)
		if recordID, ok := existing[dev.SerialNumber]; ok {
			updates = append(updates, builder.RecordId(recordID).Build())
			continue
		}
		creates = append(creates, builder.Build())
	}

	for _, chunk := range chunkRecords(creates) {
		n, err := c.batchCreate(ctx, chunk)
		result.Created += n
		if err != nil {
			return result, err
		}
	}
	for _, chunk := range chunkRecords(updates) {
		n, err := c.batchUpdate(ctx, chunk)
		result.Updated += n
		if err != nil {
			return result, err
		}
	}
	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Str("table_id", c.tableID).
		Msg("feishu: roster exported")
	return result, nil
}

func (c *RosterClient) rowFields(dev depsync.Device, syncedAt time.Time) map[string]any {
	fields := map[string]any{
		c.fields.SerialNumber: dev.SerialNumber,
	}
	setText := func(name, value string) {
		if name != "" && strings.TrimSpace(value) != "" {
			fields[name] = value
		}
	}
	setTime := func(name string, value time.Time) {
		if name != "" && !value.IsZero() {
			fields[name] = value.UnixMilli()
		}
	}
	setText(c.fields.Model, dev.Model)
	setText(c.fields.Description, dev.Description)
	setText(c.fields.Color, dev.Color)
	setText(c.fields.AssetTag, dev.AssetTag)
	setText(c.fields.OS, dev.OS)
	setText(c.fields.DeviceFamily, dev.DeviceFamily)
	setText(c.fields.ProfileStatus, string(dev.ProfileStatus))
	setText(c.fields.ProfileUUID, dev.ProfileUUID)
	setTime(c.fields.ProfileAssignTime, dev.ProfileAssignTime)
	setTime(c.fields.DeviceAssignedDate, dev.DeviceAssignedDate)
	setText(c.fields.DeviceAssignedBy, dev.DeviceAssignedBy)
	setTime(c.fields.SyncedAt, syncedAt)
	return fields
}

// existingRecords maps serial numbers to record ids for rows already in the table.
func (c *RosterClient) existingRecords(ctx context.Context) (map[string]string, error) {
	body := &larkbitable.SearchAppTableRecordReqBody{
		FieldNames: []string{c.fields.SerialNumber},
	}
	out := make(map[string]string)
	pageToken := ""
	for {
		resp, err := c.api.Search(ctx, c.appToken, c.tableID, searchPageSize, pageToken, body)
		if err != nil {
			return nil, errors.Wrap(err, "feishu: search roster records request failed")
		}
		if resp == nil || resp.ApiResp == nil {
			return nil, errors.New("feishu: empty response when searching roster records")
		}
		if err := ensureSDKSuccess("search roster records", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
			return nil, err
		}
		if resp.Data == nil {
			return out, nil
		}
		for _, item := range resp.Data.Items {
			if item == nil {
				continue
			}
			serial := cellText(item.Fields[c.fields.SerialNumber])
			recordID := strings.TrimSpace(larkcore.StringValue(item.RecordId))
			if serial == "" || recordID == "" {
				continue
			}
			if _, dup := out[serial]; dup {
				log.Warn().Str("serial", serial).Str("record_id", recordID).Msg("feishu: duplicate roster row, keeping first")
				continue
			}
			out[serial] = recordID
		}
		next := strings.TrimSpace(larkcore.StringValue(resp.Data.PageToken))
		if !larkcore.BoolValue(resp.Data.HasMore) || next == "" {
			return out, nil
		}
		pageToken = next
	}
}

func (c *RosterClient) batchCreate(ctx context.Context, records []*larkbitable.AppTableRecord) (int, error) {
	body := larkbitable.NewBatchCreateAppTableRecordReqBodyBuilder().
		Records(records).
		Build()
	resp, err := c.api.BatchCreate(ctx, c.appToken, c.tableID, body)
	if err != nil {
		return 0, errors.Wrap(err, "feishu: batch create request failed")
	}
	if resp == nil || resp.ApiResp == nil {
		return 0, errors.New("feishu: empty response when batch creating records")
	}
	if err := ensureSDKSuccess("batch create records", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return 0, err
	}
	if resp.Data == nil {
		return 0, errors.New("feishu: batch create response missing data")
	}
	return len(resp.Data.Records), nil
}

func (c *RosterClient) batchUpdate(ctx context.Context, records []*larkbitable.AppTableRecord) (int, error) {
	body := larkbitable.NewBatchUpdateAppTableRecordReqBodyBuilder().
		Records(records).
		Build()
	resp, err := c.api.BatchUpdate(ctx, c.appToken, c.tableID, body)
	if err != nil {
		return 0, errors.Wrap(err, "feishu: batch update request failed")
	}
	if resp == nil || resp.ApiResp == nil {
		return 0, errors.New("feishu: empty response when batch updating records")
	}
	if err := ensureSDKSuccess("batch update records", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return 0, err
	}
	if resp.Data == nil {
		return 0, errors.New("feishu: batch update response missing data")
	}
	return len(resp.Data.Records), nil
}

func chunkRecords(records []*larkbitable.AppTableRecord) [][]*larkbitable.AppTableRecord {
	var chunks [][]*larkbitable.AppTableRecord
	for start := 0; start < len(records); start += maxBatchRecords {
		end := start + maxBatchRecords
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

// cellText flattens a bitable cell: plain strings, rich text segments
// ([{"type":"text","text":"..."}]) or numbers.
func cellText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		var sb strings.Builder
		for _, item := range v {
			sb.WriteString(cellText(item))
		}
		return strings.TrimSpace(sb.String())
	case map[string]any:
		if text, ok := v["text"]; ok {
			return cellText(text)
		}
		if val, ok := v["value"]; ok {
			return cellText(val)
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
