package graph

import "github.com/horazont/metric-relay/pkg/model"

// Filter is one stage of a Router pipeline. It returns the (possibly
// modified) item and whether it survives; false drops it from the output.
type Filter interface {
	Apply(r *model.Readout) (*model.Readout, bool)
}
