package appliance

import (
	"fmt"
	"maps"

	"github.com/nerrad567/hon-bridge/internal/hon/cloud"
	"github.com/nerrad567/hon-bridge/internal/hon/parameter"
)

// defaultNames names appliances without a nickname, by type id.
var defaultNames = map[string]string{
	"1":  "Washing Machine",
	"2":  "Wash Dryer",
	"4":  "Oven",
	"6":  "Wine Cooler",
	"7":  "Purifier",
	"8":  "Tumble Dryer",
	"9":  "Dish Washer",
	"11": "Climate",
	"14": "Fridge",
}

// DefaultName returns the display name for an appliance type id.
func DefaultName(typeID string) string {
	if name, ok := defaultNames[typeID]; ok {
		return name
	}
	return "Device ID: " + typeID
}

// Info is the identity of an appliance, taken from its discovery record.
type Info struct {
	MAC          string `json:"mac"`
	Name         string `json:"name"`
	Brand        string `json:"brand"`
	TypeID       string `json:"type_id"`
	TypeName     string `json:"type_name"`
	ModelName    string `json:"model_name"`
	ModelID      string `json:"model_id"`
	Series       string `json:"series"`
	SerialNumber string `json:"serial_number"`
	FWVersion    string `json:"fw_version"`
	Code         string `json:"code"`
	EepromID     string `json:"eeprom_id"`
}

// NewInfo reads the identity fields of a discovery record.
// Returns ErrIncompleteRecord without macAddress or applianceTypeId.
func NewInfo(record map[string]any) (Info, error) {
	str := func(key string) string { return parameter.Stringify(record[key]) }

	info := Info{
		MAC:          str("macAddress"),
		Brand:        str("brand"),
		TypeID:       str("applianceTypeId"),
		TypeName:     str("applianceTypeName"),
		ModelName:    str("modelName"),
		ModelID:      str("applianceModelId"),
		Series:       str("series"),
		SerialNumber: str("serialNumber"),
		FWVersion:    str("fwVersion"),
		Code:         str("code"),
		EepromID:     str("eepromId"),
	}
	if info.MAC == "" || info.TypeID == "" {
		return Info{}, fmt.Errorf("%w: %v", ErrIncompleteRecord, record["macAddress"])
	}

	info.Name = str("nickName")
	if info.Name == "" {
		info.Name = DefaultName(info.TypeID)
	}
	return info, nil
}

// SchemaQuery returns the parameters of the command-schema request.
func (i Info) SchemaQuery() cloud.SchemaQuery {
	return cloud.SchemaQuery{
		MAC:       i.MAC,
		TypeID:    i.TypeID,
		Code:      i.Code,
		ModelID:   i.ModelID,
		EepromID:  i.EepromID,
		FWVersion: i.FWVersion,
		Series:    i.Series,
	}
}

// cloneRecord copies the top level of a discovery record.
func cloneRecord(record map[string]any) map[string]any {
	if record == nil {
		return map[string]any{}
	}
	return maps.Clone(record)
}
