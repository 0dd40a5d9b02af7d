package query

import (
	"log/slog"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/MeKo-Tech/parcelmap/internal/metrics"
	"github.com/MeKo-Tech/parcelmap/internal/types"
)

// Status is the main query channel state.
type Status int

const (
	Idle Status = iota
	Loading
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Failure describes the last failed refresh. Previous results stay on screen.
type Failure struct {
	Kind      api.Kind
	Message   string
	Retryable bool
	// AfterRetry is set when a user-triggered retry failed too; the UI shows an
	// explicit error state instead of a dismissible banner.
	AfterRetry bool
	Err        error
}

// Request is one search to run on the query channel.
type Request struct {
	Generation uint64
	Params     Params
}

// Response carries the parameters that produced it back to Apply.
type Response struct {
	Generation uint64
	Params     Params
	Result     *api.SearchResult
	Err        error
}

// Outcome reports what Apply did with a response.
type Outcome int

const (
	Applied Outcome = iota
	Discarded
	FailedOutcome
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Discarded:
		return "discarded"
	default:
		return "failed"
	}
}

// Config configures an Orchestrator.
type Config struct {
	PageSize int
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Snapshot is the read-only query state.
type Snapshot struct {
	Status     Status
	Strategy   Strategy
	Params     Params
	Results    []types.Property
	Total      int
	Generation uint64
	Failure    *Failure
}

// Orchestrator owns the main query channel.
type Orchestrator struct {
	pageSize int

	generation   uint64
	current      Params
	lastIssued   string
	retryPending bool

	status   Status
	results  []types.Property
	total    int
	failure  *Failure
	inFlight bool
	// loaded is set once a result set was applied since the last Reset.
	loaded bool

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = api.DefaultPageSize
	}
	if cfg.PageSize > api.MaxPageSize {
		cfg.PageSize = api.MaxPageSize
	}
	return &Orchestrator{
		pageSize: cfg.PageSize,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

func (o *Orchestrator) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return slog.Default()
}

// Update recomputes the parameters from in. It returns a request unless the
// parameters key equals the last issued key or no strategy applies.
func (o *Orchestrator) Update(in Inputs) (Request, bool) {
	params := Build(in, o.pageSize)
	key := params.Key()
	prev := o.current.Key()
	o.current = params

	if params.Strategy == StrategyNone {
		if prev != "" {
			// invalidate whatever is in flight
			o.generation++
			o.inFlight = false
			o.lastIssued = ""
			if o.status == Loading {
				o.status = Idle
			}
		}
		return Request{}, false
	}

	if key == o.lastIssued {
		o.metrics.IncQuerySkipped()
		o.log().Debug("query skipped, key unchanged", "strategy", params.Strategy, "key", key)
		return Request{}, false
	}

	return o.issue(), true
}

// Retry reissues the current parameters. Retries are only ever user-triggered.
func (o *Orchestrator) Retry() (Request, bool) {
	if o.current.Strategy == StrategyNone {
		return Request{}, false
	}
	o.retryPending = true
	return o.issue(), true
}

func (o *Orchestrator) issue() Request {
	o.generation++
	o.lastIssued = o.current.Key()
	o.inFlight = true
	o.status = Loading
	o.metrics.IncQuery(o.current.Strategy.String())
	o.log().Debug("query issued",
		"strategy", o.current.Strategy,
		"generation", o.generation,
		"key", o.lastIssued)
	return Request{Generation: o.generation, Params: o.current}
}

// Apply applies resp when it belongs to the latest generation and its parameters
// still match the current ones. Anything else is dropped silently.
func (o *Orchestrator) Apply(resp Response) Outcome {
	if resp.Generation != o.generation || resp.Params.Key() != o.current.Key() {
		o.metrics.IncStale("query")
		o.log().Debug("stale query response discarded",
			"generation", resp.Generation,
			"latest", o.generation)
		return Discarded
	}

	afterRetry := o.retryPending
	o.inFlight = false
	o.retryPending = false

	if resp.Err != nil {
		kind := api.Classify(resp.Err)
		if kind == api.KindCanceled {
			// nothing replaces it, so the same key may be issued again
			o.lastIssued = ""
			switch {
			case o.failure != nil:
				o.status = Failed
			case o.loaded:
				o.status = Ready
			default:
				o.status = Idle
			}
			return Discarded
		}
		o.metrics.IncQueryError(string(kind))
		o.status = Failed
		o.failure = &Failure{
			Kind:       kind,
			Message:    api.UserMessage(resp.Err),
			Retryable:  api.Retryable(resp.Err),
			AfterRetry: afterRetry,
			Err:        resp.Err,
		}
		o.log().Warn("query failed",
			"strategy", resp.Params.Strategy,
			"kind", kind,
			"after_retry", afterRetry,
			"error", resp.Err)
		return FailedOutcome
	}

	o.status = Ready
	o.failure = nil
	o.loaded = true
	if resp.Result != nil {
		o.results = resp.Result.Properties
		o.total = resp.Result.Total
	} else {
		o.results = nil
		o.total = 0
	}
	o.log().Debug("query applied",
		"strategy", resp.Params.Strategy,
		"generation", resp.Generation,
		"results", len(o.results),
		"total", o.total)
	return Applied
}

// DismissFailure hides the failure banner, keeping the results.
func (o *Orchestrator) DismissFailure() {
	o.failure = nil
	if o.status == Failed {
		o.status = Ready
	}
}

// Reset clears results, for example when everything was cleared.
func (o *Orchestrator) Reset() {
	o.generation++
	o.current = Params{}
	o.lastIssued = ""
	o.results = nil
	o.total = 0
	o.failure = nil
	o.inFlight = false
	o.loaded = false
	o.status = Idle
}

// InFlight reports whether a request is outstanding.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight
}

// Results returns the last successfully applied result set.
func (o *Orchestrator) Results() []types.Property {
	return o.results
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	var f *Failure
	if o.failure != nil {
		cp := *o.failure
		f = &cp
	}
	return Snapshot{
		Status:     o.status,
		Strategy:   o.current.Strategy,
		Params:     o.current,
		Results:    o.results,
		Total:      o.total,
		Generation: o.generation,
		Failure:    f,
	}
}
