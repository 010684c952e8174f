// Package api implements the HTTP REST API for Puck Central.
//
// This package provides:
//   - Puck endpoints: list, rename, delete, supported triggers, on-demand
//     service discovery and manual trigger firing
//   - Pairing endpoints: candidate list, accept, dismiss and manual sightings
//   - Rule endpoints: list, configure an action, delete
//   - System endpoints: health, live discovery sessions, actuator catalogue
//     and the Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery, metrics, body limit)
//
// # Architecture
//
// The server is a thin layer over the domain services. Every handler maps
// domain sentinel errors onto HTTP status codes in one place (writeDomainError)
// so the services never know about HTTP.
//
// # Graceful Degradation
//
// The server runs without MQTT or InfluxDB; their health checks simply
// report failure.
package api
