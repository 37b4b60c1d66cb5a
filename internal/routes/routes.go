// Package routes exposes the registry over HTTP. Handlers bind and
// validate the wire shapes, then delegate to the identity manager, the
// lifecycle coordinator and the reporting service. All authorization
// decisions live below this package.
package routes

import (
	"gadify-server/internal/identity"
	"gadify-server/internal/lifecycle"
	"gadify-server/internal/reporting"
)

type API struct {
	identity *identity.Manager
	registry *lifecycle.Coordinator
	reports  *reporting.Service
}

func NewAPI(identity *identity.Manager, registry *lifecycle.Coordinator, reports *reporting.Service) *API {
	return &API{
		identity: identity,
		registry: registry,
		reports:  reports,
	}
}
