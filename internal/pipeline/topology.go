// Package pipeline contains the transport plumbing shared by all four
// stages: the fixed queue topology, the lead publisher, and the reusable
// consume/transform/forward engine with its failure policy.
package pipeline

import "fmt"

// Queue names. All are durable and asserted idempotently by every process
// that connects; declaration is not ownership.
const (
	QueueValidation = "lead.validation"
	QueueCleaning   = "lead.cleaning"
	QueueEnrichment = "lead.enrichment"
	QueueStorage    = "lead.storage"
	QueueDeadLetter = "lead.deadletter"
)

// Stage identifies one pipeline step.
type Stage string

const (
	StageValidate Stage = "validate"
	StageClean    Stage = "clean"
	StageEnrich   Stage = "enrich"
	StageStore    Stage = "store"
)

// Route maps a stage to its input queue and, except for the terminal stage,
// its output queue.
type Route struct {
	Stage  Stage
	Input  string
	Output string
}

var routes = map[Stage]Route{
	StageValidate: {Stage: StageValidate, Input: QueueValidation, Output: QueueCleaning},
	StageClean:    {Stage: StageClean, Input: QueueCleaning, Output: QueueEnrichment},
	StageEnrich:   {Stage: StageEnrich, Input: QueueEnrichment, Output: QueueStorage},
	StageStore:    {Stage: StageStore, Input: QueueStorage, Output: ""},
}

// RouteFor returns the routing entry for a stage.
func RouteFor(stage Stage) (Route, error) {
	r, ok := routes[stage]
	if !ok {
		return Route{}, fmt.Errorf("unknown stage %q", stage)
	}
	return r, nil
}

// AllQueues returns every queue the pipeline uses, in flow order, for
// assertion at connect time.
func AllQueues() []string {
	return []string{
		QueueValidation,
		QueueCleaning,
		QueueEnrichment,
		QueueStorage,
		QueueDeadLetter,
	}
}
