package feishu

// Environment keys for the roster bitable.
const (
	EnvAppID     = "FEISHU_APP_ID"
	EnvAppSecret = "FEISHU_APP_SECRET"
	EnvBaseURL   = "FEISHU_BASE_URL"

	EnvRosterAppToken = "DEP_ROSTER_APP_TOKEN"
	EnvRosterTableID  = "DEP_ROSTER_TABLE_ID"

	EnvRosterFieldSerial        = "DEP_ROSTER_FIELD_SERIAL"
	EnvRosterFieldModel         = "DEP_ROSTER_FIELD_MODEL"
	EnvRosterFieldProfileStatus = "DEP_ROSTER_FIELD_PROFILE_STATUS"
	EnvRosterFieldProfileUUID   = "DEP_ROSTER_FIELD_PROFILE_UUID"
	EnvRosterFieldSyncedAt      = "DEP_ROSTER_FIELD_SYNCED_AT"
)

// RosterFields lists column names of the device roster table.
type RosterFields struct {
	SerialNumber       string
	Model              string
	Description        string
	Color              string
	AssetTag           string
	OS                 string
	DeviceFamily       string
	ProfileStatus      string
	ProfileUUID        string
	ProfileAssignTime  string
	DeviceAssignedDate string
	DeviceAssignedBy   string
	SyncedAt           string
}

// DefaultRosterFields matches the roster table template.
var DefaultRosterFields = RosterFields{
	SerialNumber:       "SerialNumber",
	Model:              "Model",
	Description:        "Description",
	Color:              "Color",
	AssetTag:           "AssetTag",
	OS:                 "OS",
	DeviceFamily:       "DeviceFamily",
	ProfileStatus:      "ProfileStatus",
	ProfileUUID:        "ProfileUUID",
	ProfileAssignTime:  "ProfileAssignTime",
	DeviceAssignedDate: "DeviceAssignedDate",
	DeviceAssignedBy:   "DeviceAssignedBy",
	SyncedAt:           "SyncedAt",
}

// bitable batch endpoints accept at most 500 records per call.
const maxBatchRecords = 500

const searchPageSize = 500
