package pipeline

import "testing"

func TestRouteForChain(t *testing.T) {
	tests := []struct {
		stage  Stage
		input  string
		output string
	}{
		{StageValidate, QueueValidation, QueueCleaning},
		{StageClean, QueueCleaning, QueueEnrichment},
		{StageEnrich, QueueEnrichment, QueueStorage},
		{StageStore, QueueStorage, ""},
	}
	for _, tt := range tests {
		r, err := RouteFor(tt.stage)
		if err != nil {
			t.Fatalf("RouteFor(%s): %v", tt.stage, err)
		}
		if r.Input != tt.input || r.Output != tt.output {
			t.Errorf("RouteFor(%s) = %+v, want input %q output %q", tt.stage, r, tt.input, tt.output)
		}
	}
}

func TestRouteForUnknownStage(t *testing.T) {
	if _, err := RouteFor(Stage("archive")); err == nil {
		t.Error("RouteFor on unknown stage returned nil error")
	}
}

func TestAllQueuesCoversEveryRoute(t *testing.T) {
	queues := make(map[string]bool)
	for _, q := range AllQueues() {
		queues[q] = true
	}
	for _, r := range routes {
		if !queues[r.Input] {
			t.Errorf("input queue %q missing from AllQueues", r.Input)
		}
		if r.Output != "" && !queues[r.Output] {
			t.Errorf("output queue %q missing from AllQueues", r.Output)
		}
	}
	if !queues[QueueDeadLetter] {
		t.Error("dead-letter queue missing from AllQueues")
	}
}
