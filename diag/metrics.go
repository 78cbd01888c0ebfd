package diag

import "github.com/prometheus/client_golang/prometheus"

var (
	temperatureGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "printd",
			Subsystem: "thermal",
			Name:      "temperature_celsius",
			Help:      "Measured channel temperature",
		},
		[]string{"channel"},
	)

	setpointGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "printd",
			Subsystem: "thermal",
			Name:      "setpoint_celsius",
			Help:      "Channel temperature setpoint",
		},
		[]string{"channel"},
	)

	dutyGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "printd",
			Subsystem: "thermal",
			Name:      "duty_fraction",
			Help:      "Applied heater duty as a fraction of full power",
		},
		[]string{"channel"},
	)

	faultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printd",
			Subsystem: "thermal",
			Name:      "faults_total",
			Help:      "Thermal fault transitions",
		},
		[]string{"channel"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printd",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Commands processed by result",
		},
		[]string{"kind", "result"},
	)

	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "printd",
			Subsystem: "motion",
			Name:      "steps_total",
			Help:      "Step pulses committed per axis",
		},
		[]string{"axis"},
	)

	fanSpeedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "printd",
			Subsystem: "fan",
			Name:      "speed",
			Help:      "Requested fan speed after clamping",
		},
	)
)

func init() {
	prometheus.MustRegister(
		temperatureGauge, setpointGauge, dutyGauge, faultsTotal,
		commandsTotal, stepsTotal, fanSpeedGauge,
	)
}

// ObserveThermal records one channel's control-cycle outcome.
func ObserveThermal(channel string, measured, setpoint, duty float64) {
	temperatureGauge.WithLabelValues(channel).Set(measured)
	setpointGauge.WithLabelValues(channel).Set(setpoint)
	dutyGauge.WithLabelValues(channel).Set(duty)
}

// CountFault records a thermal fault transition.
func CountFault(channel string) {
	faultsTotal.WithLabelValues(channel).Inc()
}

// CountCommand records a dispatched command and its outcome.
func CountCommand(kind string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	commandsTotal.WithLabelValues(kind, result).Inc()
}

// AddSteps records committed step pulses for an axis.
func AddSteps(axis string, n int) {
	if n > 0 {
		stepsTotal.WithLabelValues(axis).Add(float64(n))
	}
}

// SetFanSpeed records the applied fan speed.
func SetFanSpeed(speed float64) {
	fanSpeedGauge.Set(speed)
}
