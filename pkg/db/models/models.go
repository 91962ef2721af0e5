package models

// All returns the persisted models in dependency order. The sqlite dev path
// migrates these directly since the goose files target Postgres.
func All() []any {
	return []any{
		&PaymentIntent{},
		&Task{},
	}
}
