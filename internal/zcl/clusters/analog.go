package clusters

import "zigbee-descriptors/internal/zcl"

// analogAttributes are shared by the Analog Input/Output/Value clusters.
// Firmware commonly repurposes these clusters for sensor values that have no
// dedicated measurement cluster (VOC index, particulate counts).
func analogAttributes(extra ...zcl.AttributeDef) []zcl.AttributeDef {
	attrs := []zcl.AttributeDef{
		{ID: 0x001C, Name: "Description", Key: "description", Type: zcl.TypeCharStr, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0041, Name: "MaxPresentValue", Key: "maxPresentValue", Type: zcl.TypeFloat32, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0045, Name: "MinPresentValue", Key: "minPresentValue", Type: zcl.TypeFloat32, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0051, Name: "OutOfService", Key: "outOfService", Type: zcl.TypeBool, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0055, Name: "PresentValue", Key: "presentValue", Type: zcl.TypeFloat32, Access: zcl.AccessRead | zcl.AccessWrite | zcl.AccessReport},
		{ID: 0x006A, Name: "Resolution", Key: "resolution", Type: zcl.TypeFloat32, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x006F, Name: "StatusFlags", Key: "statusFlags", Type: zcl.TypeBitmap8, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0075, Name: "EngineeringUnits", Key: "engineeringUnits", Type: zcl.TypeEnum16, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0100, Name: "ApplicationType", Key: "applicationType", Type: zcl.TypeUint32, Access: zcl.AccessRead},
	}
	return append(attrs, extra...)
}

var AnalogInput = zcl.ClusterDef{
	ID:         0x000C,
	Name:       "Analog Input (Basic)",
	Key:        "genAnalogInput",
	Attributes: analogAttributes(),
}

var AnalogOutput = zcl.ClusterDef{
	ID:   0x000D,
	Name: "Analog Output (Basic)",
	Key:  "genAnalogOutput",
	Attributes: analogAttributes(
		zcl.AttributeDef{ID: 0x0068, Name: "RelinquishDefault", Key: "relinquishDefault", Type: zcl.TypeFloat32, Access: zcl.AccessRead | zcl.AccessWrite},
	),
}

var AnalogValue = zcl.ClusterDef{
	ID:   0x000E,
	Name: "Analog Value (Basic)",
	Key:  "genAnalogValue",
	Attributes: analogAttributes(
		zcl.AttributeDef{ID: 0x0068, Name: "RelinquishDefault", Key: "relinquishDefault", Type: zcl.TypeFloat32, Access: zcl.AccessRead | zcl.AccessWrite},
	),
}
