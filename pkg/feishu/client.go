// Package feishu exports the device roster into a Feishu bitable.
package feishu

import (
	"context"
	"strings"

	"github.com/httprunner/depsync/internal/config"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	"github.com/pkg/errors"
)

type bitableRecordAPI interface {
	Search(ctx context.Context, appToken, tableID string, pageSize int, pageToken string, body *larkbitable.SearchAppTableRecordReqBody) (*larkbitable.SearchAppTableRecordResp, error)
	BatchCreate(ctx context.Context, appToken, tableID string, body *larkbitable.BatchCreateAppTableRecordReqBody) (*larkbitable.BatchCreateAppTableRecordResp, error)
	BatchUpdate(ctx context.Context, appToken, tableID string, body *larkbitable.BatchUpdateAppTableRecordReqBody) (*larkbitable.BatchUpdateAppTableRecordResp, error)
}

type larkAppTableRecordService interface {
	Search(ctx context.Context, req *larkbitable.SearchAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.SearchAppTableRecordResp, error)
	BatchCreate(ctx context.Context, req *larkbitable.BatchCreateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchCreateAppTableRecordResp, error)
	BatchUpdate(ctx context.Context, req *larkbitable.BatchUpdateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchUpdateAppTableRecordResp, error)
}

type sdkBitableRecordAPI struct {
	svc larkAppTableRecordService
}

func (a sdkBitableRecordAPI) Search(ctx context.Context, appToken, tableID string, pageSize int, pageToken string, body *larkbitable.SearchAppTableRecordReqBody) (*larkbitable.SearchAppTableRecordResp, error) {
	builder := larkbitable.NewSearchAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		PageSize(pageSize)
	if strings.TrimSpace(pageToken) != "" {
		builder.PageToken(strings.TrimSpace(pageToken))
	}
	if body != nil {
		builder.Body(body)
	}
	return a.svc.Search(ctx, builder.Build())
}

func (a sdkBitableRecordAPI) BatchCreate(ctx context.Context, appToken, tableID string, body *larkbitable.BatchCreateAppTableRecordReqBody) (*larkbitable.BatchCreateAppTableRecordResp, error) {
	req := larkbitable.NewBatchCreateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		Body(body).
		Build()
	return a.svc.BatchCreate(ctx, req)
}

func (a sdkBitableRecordAPI) BatchUpdate(ctx context.Context, appToken, tableID string, body *larkbitable.BatchUpdateAppTableRecordReqBody) (*larkbitable.BatchUpdateAppTableRecordResp, error) {
	req := larkbitable.NewBatchUpdateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		Body(body).
		Build()
	return a.svc.BatchUpdate(ctx, req)
}

// RosterClient writes devices into one bitable table. The SDK client obtains
// and caches the tenant access token itself.
type RosterClient struct {
	appToken string
	tableID  string
	fields   RosterFields
	api      bitableRecordAPI
}

// NewRosterClientFromEnv constructs a RosterClient.
//
// Required variables:
//   - FEISHU_APP_ID
//   - FEISHU_APP_SECRET
//   - DEP_ROSTER_APP_TOKEN
//   - DEP_ROSTER_TABLE_ID
//
// Optional variables:
//   - FEISHU_BASE_URL (defaults to https://open.feishu.cn)
//   - DEP_ROSTER_FIELD_* column name overrides
func NewRosterClientFromEnv() (*RosterClient, error) {
	appID := config.String(EnvAppID, "")
	appSecret := config.String(EnvAppSecret, "")
	if appID == "" || appSecret == "" {
		return nil, errors.New("feishu: FEISHU_APP_ID and FEISHU_APP_SECRET must be set in environment")
	}
	appToken := config.String(EnvRosterAppToken, "")
	tableID := config.String(EnvRosterTableID, "")
	if appToken == "" || tableID == "" {
		return nil, errors.Errorf("feishu: %s and %s must be set in environment", EnvRosterAppToken, EnvRosterTableID)
	}

	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelError),
	}
	baseURL := strings.TrimRight(config.String(EnvBaseURL, lark.FeishuBaseUrl), "/")
	if baseURL != lark.FeishuBaseUrl {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	client := lark.NewClient(appID, appSecret, opts...)

	return &RosterClient{
		appToken: appToken,
		tableID:  tableID,
		fields:   rosterFieldsFromEnv(),
		api:      sdkBitableRecordAPI{svc: client.Bitable.V1.AppTableRecord},
	}, nil
}

func rosterFieldsFromEnv() RosterFields {
	fields := DefaultRosterFields
	fields.SerialNumber = config.String(EnvRosterFieldSerial, fields.SerialNumber)
	fields.Model = config.String(EnvRosterFieldModel, fields.Model)
	fields.ProfileStatus = config.String(EnvRosterFieldProfileStatus, fields.ProfileStatus)
	fields.ProfileUUID = config.String(EnvRosterFieldProfileUUID, fields.ProfileUUID)
	fields.SyncedAt = config.String(EnvRosterFieldSyncedAt, fields.SyncedAt)
	return fields
}

func ensureSDKSuccess(action string, ok bool, code int, msg, logID string) error {
	if ok {
		return nil
	}
	if strings.TrimSpace(logID) == "" {
		return errors.Errorf("feishu: %s failed code=%d msg=%s", action, code, msg)
	}
	return errors.Errorf("feishu: %s failed code=%d msg=%s log_id=%s", action, code, msg, logID)
}
