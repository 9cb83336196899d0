package rowflow

import (
	"context"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// RowApplier is a single pipeline step. It returns the rows to continue
// with: nil or empty means the row was filtered, one element continues the
// chain, several elements branch into independent continuations.
type RowApplier func(ctx context.Context, row *Row) ([]*Row, error)

// PipelineFunction is one named step of a pipeline. The id and name exist
// for diagnostics only.
type PipelineFunction struct {
	id           string
	name         string
	pipelineName string
	fn           RowApplier
}

func (f *PipelineFunction) Name() string { return f.name }

// FullID identifies the function within its owning pipeline for log output.
func (f *PipelineFunction) FullID() string {
	return "[P:" + f.pipelineName + "];[F:" + f.name + "];[ID:" + f.id + "]"
}

// Pipeline is an ordered chain of row-transforming steps. Chain building is
// not safe to race with Process; the common pattern is to build once at
// startup and then call Process concurrently from partition workers.
type Pipeline struct {
	name  string
	steps []*PipelineFunction
	log   logr.Logger
}

// NewPipeline creates an empty pipeline. An empty name is replaced with a
// generated one.
func NewPipeline(name string, log logr.Logger) *Pipeline {
	if name == "" {
		name = uuid.NewString()
	}
	return &Pipeline{name: name, log: log}
}

func (p *Pipeline) Name() string { return p.name }

// Functions returns the current step chain.
func (p *Pipeline) Functions() []*PipelineFunction { return p.steps }

// Apply appends a step to the chain. An empty name is derived from the
// function itself.
func (p *Pipeline) Apply(fn RowApplier, name string) {
	if name == "" {
		name = funcName(fn)
	}
	step := &PipelineFunction{
		id:           uuid.NewString(),
		name:         name,
		pipelineName: p.name,
		fn:           fn,
	}
	p.log.V(1).Info("registered pipeline function", "function", step.FullID())
	p.steps = append(p.steps, step)
}

// Clone returns a pipeline sharing the current steps with this one. Steps
// appended to either pipeline afterwards are invisible to the other: the
// three-index slice expression forces any future append to reallocate
// instead of writing into the shared prefix.
func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{
		name:  uuid.NewString(),
		steps: p.steps[:len(p.steps):len(p.steps)],
		log:   p.log,
	}
}

// Process folds a row through the step chain in order, depth-first and
// left-to-right across branches. It returns nil when the row was filtered
// away. Errors from steps propagate unmodified; no retry or suppression
// happens here.
func (p *Pipeline) Process(ctx context.Context, row *Row) ([]*Row, error) {
	rows := []*Row{row}
	for _, step := range p.steps {
		next := make([]*Row, 0, len(rows))
		for _, r := range rows {
			out, err := step.fn(ctx, r)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		if len(next) == 0 {
			p.log.V(1).Info("pipeline function filtered row, terminating", "function", step.FullID())
			return nil, nil
		}
		rows = next
	}
	return rows, nil
}

func funcName(fn any) string {
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "callable"
	}
	return name
}
