package clusters

import "zigbee-descriptors/internal/zcl"

// measuredValue builds the MeasuredValue/Min/Max/Tolerance block common to
// the measurement and sensing clusters.
func measuredValue(typeID uint8) []zcl.AttributeDef {
	return []zcl.AttributeDef{
		{ID: 0x0000, Name: "MeasuredValue", Key: "measuredValue", Type: typeID, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0001, Name: "MinMeasuredValue", Key: "minMeasuredValue", Type: typeID, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "MaxMeasuredValue", Key: "maxMeasuredValue", Type: typeID, Access: zcl.AccessRead},
		{ID: 0x0003, Name: "Tolerance", Key: "tolerance", Type: typeID, Access: zcl.AccessRead},
	}
}

var IlluminanceMeasurement = zcl.ClusterDef{
	ID:         0x0400,
	Name:       "Illuminance Measurement",
	Key:        "msIlluminanceMeasurement",
	Attributes: measuredValue(zcl.TypeUint16),
}

var TemperatureMeasurement = zcl.ClusterDef{
	ID:         0x0402,
	Name:       "Temperature Measurement",
	Key:        "msTemperatureMeasurement",
	Attributes: measuredValue(zcl.TypeInt16),
}

var PressureMeasurement = zcl.ClusterDef{
	ID:   0x0403,
	Name: "Pressure Measurement",
	Key:  "msPressureMeasurement",
	Attributes: append(measuredValue(zcl.TypeInt16),
		zcl.AttributeDef{ID: 0x0010, Name: "ScaledValue", Key: "scaledValue", Type: zcl.TypeInt16, Access: zcl.AccessRead | zcl.AccessReport},
		zcl.AttributeDef{ID: 0x0014, Name: "Scale", Key: "scale", Type: zcl.TypeInt8, Access: zcl.AccessRead},
	),
}

var RelativeHumidity = zcl.ClusterDef{
	ID:         0x0405,
	Name:       "Relative Humidity",
	Key:        "msRelativeHumidity",
	Attributes: measuredValue(zcl.TypeUint16),
}

var OccupancySensing = zcl.ClusterDef{
	ID:   0x0406,
	Name: "Occupancy Sensing",
	Key:  "msOccupancySensing",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "Occupancy", Key: "occupancy", Type: zcl.TypeBitmap8, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0001, Name: "OccupancySensorType", Key: "occupancySensorType", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x0010, Name: "PIROccupiedToUnoccupiedDelay", Key: "pirOToUDelay", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessWrite},
	},
}

// CarbonDioxide reports concentration as a fraction (1 ppm = 1e-6).
var CarbonDioxide = zcl.ClusterDef{
	ID:         0x040D,
	Name:       "Carbon Dioxide (CO2) Measurement",
	Key:        "msCO2",
	Attributes: measuredValue(zcl.TypeFloat32),
}

var PM25Measurement = zcl.ClusterDef{
	ID:         0x042A,
	Name:       "PM2.5 Measurement",
	Key:        "pm25Measurement",
	Attributes: measuredValue(zcl.TypeFloat32),
}
