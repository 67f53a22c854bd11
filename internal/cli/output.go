package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/vietddude/chainmetrics/internal/core/domain"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitOnError prints err as an ErrorResponse and exits with status 1.
func exitOnError(chain domain.Chain, err error) {
	if err == nil {
		return
	}
	_ = printJSON(os.Stdout, domain.NewErrorResponse(chain, err))
	os.Exit(1)
}
