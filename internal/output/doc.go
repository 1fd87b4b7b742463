// Package output presents analysis results and exports transfers.
//
//   - TextRenderer prints the console report: device list, poll rate,
//     timing distribution and, in verbose mode, the diagnostic section.
//   - WriteReport serializes a Report as YAML or JSON.
//   - OTelExporter turns each completed transfer into a span with its real
//     start and end times, under one parent span per analysis.
//   - MQTTPublisher sends the JSON report to a broker topic.
//
// Nothing here computes statistics; all figures come from the analysis
// package.
package output
