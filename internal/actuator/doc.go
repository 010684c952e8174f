// Package actuator implements the closed set of actions a rule can run.
//
//   - notify:  publishes a notification message on an MQTT channel topic
//   - webhook: sends an HTTP request, behind a rate limiter and a per-host
//     circuit breaker
//   - publish: publishes a configured payload to an arbitrary MQTT topic
//
// Kinds returns the set; New switches over it exhaustively. The Catalogue
// satisfies automation.ActuatorCatalogue.
package actuator
