// Package loader provides the feature loading system.
//
// Each feature implements the Feature interface, which reports whether the feature is
// enabled and registers its routes.
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager keeps features in registration order; LoadAll loads the enabled ones and
// stops at the first failure.
package loader
