package core

// ADCSampler is one bound analog input channel (a thermistor divider).
type ADCSampler interface {
	// ReadRaw performs a one-shot sample.
	// Returns the raw converter value; the caller knows the resolution.
	ReadRaw() (uint16, error)
}
