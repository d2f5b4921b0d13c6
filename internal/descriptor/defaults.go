package descriptor

// sensorDefaults describes what a measurement variant binds to when the
// descriptor only overrides presentation details.
type sensorDefaults struct {
	name        string
	cluster     string
	attribute   string
	unit        string
	scale       float64
	reporting   ReportingPolicy
	description string
}

var sensorKinds = map[Kind]sensorDefaults{
	KindTemperature: {
		name:        "temperature",
		cluster:     "msTemperatureMeasurement",
		attribute:   "measuredValue",
		unit:        "°C",
		scale:       100,
		reporting:   ReportingPolicy{Min: "10_SECONDS", Max: "1_HOUR", Change: 100},
		description: "Measured temperature value",
	},
	KindHumidity: {
		name:        "humidity",
		cluster:     "msRelativeHumidity",
		attribute:   "measuredValue",
		unit:        "%",
		scale:       100,
		reporting:   ReportingPolicy{Min: "10_SECONDS", Max: "1_HOUR", Change: 100},
		description: "Measured relative humidity",
	},
	KindPressure: {
		name:        "pressure",
		cluster:     "msPressureMeasurement",
		attribute:   "measuredValue",
		unit:        "hPa",
		scale:       1,
		reporting:   ReportingPolicy{Min: "10_SECONDS", Max: "1_HOUR", Change: 1},
		description: "The measured atmospheric pressure",
	},
	KindCO2: {
		name:        "co2",
		cluster:     "msCO2",
		attribute:   "measuredValue",
		unit:        "ppm",
		scale:       0.000001,
		reporting:   ReportingPolicy{Min: "10_SECONDS", Max: "1_HOUR", Change: 0.00005},
		description: "Measured carbon dioxide concentration",
	},
	KindIlluminance: {
		name:        "illuminance",
		cluster:     "msIlluminanceMeasurement",
		attribute:   "measuredValue",
		unit:        "lx",
		scale:       1,
		reporting:   ReportingPolicy{Min: "10_SECONDS", Max: "1_HOUR", Change: 5},
		description: "Measured illuminance",
	},
	KindPM25: {
		name:        "pm25",
		cluster:     "pm25Measurement",
		attribute:   "measuredValue",
		unit:        "µg/m³",
		scale:       1,
		reporting:   ReportingPolicy{Min: "10_SECONDS", Max: "1_HOUR", Change: 1},
		description: "Measured PM2.5 (particulate matter) concentration",
	},
}

const (
	onOffCluster        = "genOnOff"
	onOffAttribute      = "onOff"
	startUpOnOffAttr    = "startUpOnOff"
	onOffDescription    = "On/off state of the switch"
	powerOnDescription  = "Controls the behavior when the device is powered on after power loss"
	powerOnPropertyName = "power_on_behavior"
)

var onOffReporting = ReportingPolicy{Min: IntervalMin, Max: IntervalMax, Change: 0}
