package analyzer

import (
	"fmt"

	"github.com/datagrade/datagrade/internal/model"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
)

// EvaluateSafe runs an analyzer with panic recovery. A panicking analyzer
// is indistinguishable from one returning an error: it costs a row from the
// failure budget and never takes the run down. This is the isolation
// boundary between analyzers.
func EvaluateSafe(a Analyzer, rc *Context, row *model.Row) (metrics []Metric, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics = nil
			err = dgerrors.New(dgerrors.CodePanic, fmt.Sprintf("analyzer %s panicked: %v", a.Name(), r)).
				WithContext("row", row.Index)
		}
	}()

	return a.Evaluate(rc, row)
}
