package ingest

import (
	"strings"

	"github.com/vietddude/chainmetrics/internal/core/domain"
)

// countDeployments counts contract creations. A trace gives full coverage;
// receipts alone only see top-level creations.
func countDeployments(data *domain.BlockData, traceMode bool) (int, domain.Coverage) {
	if traceMode && data.Trace != nil {
		return countTraceCreates(data.Trace), domain.CoverageFull
	}

	n := 0
	for _, r := range data.Receipts {
		if r.ContractAddress != "" {
			n++
		}
	}
	return n, domain.CoveragePartial
}

// countTraceCreates walks every call frame with an explicit stack.
func countTraceCreates(trace []domain.TraceEntry) int {
	stack := make([]*domain.CallFrame, 0, len(trace))
	for i := range trace {
		stack = append(stack, trace[i].Frame())
	}

	n := 0
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch strings.ToUpper(frame.Type) {
		case "CREATE", "CREATE2":
			n++
		}
		for i := range frame.Calls {
			stack = append(stack, &frame.Calls[i])
		}
	}
	return n
}
