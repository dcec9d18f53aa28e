package storage

// poolHealth adapts Pool's background HealthChecker to the HealthProbe
// interface the Control Surface's /health and /ready endpoints depend on.
type poolHealth struct{ pool *Pool }

func (h poolHealth) HealthCheck() error { return h.pool.HealthCheck() }
func (h poolHealth) IsHealthy() bool    { return h.pool.Health().IsHealthy() }

// NewPostgresContract wires every repository against the shared pool,
// bundled as the Contract the Batch Adapter, Job Manager, and Control
// Surface all depend on (spec §4.3).
func NewPostgresContract(pool *Pool) Contract {
	return Contract{
		Raw:        NewPostgresRaw(pool),
		Staging:    NewPostgresStaging(pool),
		Processed:  NewPostgresProcessed(pool),
		Jobs:       NewPostgresJobs(pool),
		Errors:     NewPostgresErrors(pool),
		Compliance: NewPostgresAudit(pool),
		Health:     poolHealth{pool: pool},
	}
}
