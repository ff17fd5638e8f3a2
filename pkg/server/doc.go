// Package server assembles the docket HTTP API.
//
// New wires the stores, services and handlers of the other packages onto a
// gorilla/mux router. Registration and login are public. Every other route
// sits behind JWT authentication and the rbac guard. A second listener serves
// /healthz, /readyz and /metrics so probes never compete with API traffic.
package server
