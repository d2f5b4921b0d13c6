package clusters

import "zigbee-descriptors/internal/zcl"

// RegisterStandard adds every cluster descriptors can refer to by name.
func RegisterStandard(r *zcl.Registry) {
	// General
	r.Register(Basic)              // 0x0000
	r.Register(PowerConfiguration) // 0x0001
	r.Register(OnOff)              // 0x0006
	r.Register(LevelControl)       // 0x0008
	r.Register(AnalogInput)        // 0x000C
	r.Register(AnalogOutput)       // 0x000D
	r.Register(AnalogValue)        // 0x000E

	// Measurement & Sensing
	r.Register(IlluminanceMeasurement) // 0x0400
	r.Register(TemperatureMeasurement) // 0x0402
	r.Register(PressureMeasurement)    // 0x0403
	r.Register(RelativeHumidity)       // 0x0405
	r.Register(OccupancySensing)       // 0x0406
	r.Register(CarbonDioxide)          // 0x040D
	r.Register(PM25Measurement)        // 0x042A
}
