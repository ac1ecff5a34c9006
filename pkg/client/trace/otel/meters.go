package otel

import otelMetric "go.opentelemetry.io/otel/metric"

// meters instruments the three phases of a request:
// the logical request as a whole, each wire request inside it (redirects
// included) and the response body parsing. The names are stable,
// dashboards depend on them.
type meters struct {
	requestsInFlight otelMetric.Int64UpDownCounter
	requestDuration  otelMetric.Float64Histogram
	httpInFlight     otelMetric.Int64UpDownCounter
	httpDuration     otelMetric.Float64Histogram
	readBytes        otelMetric.Int64Counter
	parseInFlight    otelMetric.Int64UpDownCounter
	parseDuration    otelMetric.Float64Histogram
}

func newMeters(meter otelMetric.Meter) *meters {
	return &meters{
		requestsInFlight: upDownCounter(meter, clientMeterPrefix+"request.in_flight", "Logical client requests in flight."),
		requestDuration:  histogram(meter, clientMeterPrefix+"request.duration", "Logical client request duration, parsing included."),
		httpInFlight:     upDownCounter(meter, httpMeterPrefix+"request.in_flight", "Wire requests in flight."),
		httpDuration:     histogram(meter, httpMeterPrefix+"request.duration", "Wire request duration, up to the response headers."),
		readBytes:        byteCounter(meter, httpMeterPrefix+"response.read_bytes", "Bytes read from response bodies."),
		parseInFlight:    upDownCounter(meter, clientMeterPrefix+"request.parse.in_flight", "Response bodies being parsed."),
		parseDuration:    histogram(meter, clientMeterPrefix+"request.parse.duration", "Response body parse duration."),
	}
}

func upDownCounter(meter otelMetric.Meter, name, desc string) otelMetric.Int64UpDownCounter {
	return mustInstrument(meter.Int64UpDownCounter(name, otelMetric.WithDescription(desc)))
}

func byteCounter(meter otelMetric.Meter, name, desc string) otelMetric.Int64Counter {
	return mustInstrument(meter.Int64Counter(name, otelMetric.WithDescription(desc), otelMetric.WithUnit("By")))
}

func histogram(meter otelMetric.Meter, name, desc string) otelMetric.Float64Histogram {
	return mustInstrument(meter.Float64Histogram(name, otelMetric.WithDescription(desc), otelMetric.WithUnit("ms")))
}

func mustInstrument[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
