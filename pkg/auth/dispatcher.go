package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/telemetry"
)

// errNoOutcome is reported when a mechanism returns a nil outcome.
var errNoOutcome = errors.New("auth: mechanism returned no outcome")

// Dispatcher routes SASL binds to registered mechanisms and owns the
// lifecycle of in-progress mechanism state.
//
// Rules applied to every round trip:
//  1. An unknown mechanism fails with authMethodNotSupported and clears any
//     state on the connection.
//  2. State left by a different mechanism is disposed before the handler runs.
//  3. saslBindInProgress keeps the state; any other result disposes it.
//  4. Success installs the identity and queues the negotiated security layer.
//
// Panics raised by a mechanism are not recovered.
type Dispatcher struct {
	mu         sync.RWMutex
	mechanisms map[string]Mechanism
	metrics    *BindMetrics
}

// NewDispatcher creates an empty dispatcher. metrics may be nil.
func NewDispatcher(metrics *BindMetrics) *Dispatcher {
	return &Dispatcher{
		mechanisms: make(map[string]Mechanism),
		metrics:    metrics,
	}
}

// Register adds a mechanism, replacing any mechanism with the same name.
func (d *Dispatcher) Register(mech Mechanism) {
	name := strings.ToUpper(mech.Name())

	d.mu.Lock()
	old := d.mechanisms[name]
	d.mechanisms[name] = mech
	d.mu.Unlock()

	if old != nil && old != mech {
		closeMechanism(old)
	}
	logger.Debug("SASL mechanism registered", logger.Mechanism(name))
}

// Deregister removes a mechanism. A mechanism implementing io.Closer is closed.
func (d *Dispatcher) Deregister(name string) {
	name = strings.ToUpper(name)

	d.mu.Lock()
	mech := d.mechanisms[name]
	delete(d.mechanisms, name)
	d.mu.Unlock()

	if mech != nil {
		closeMechanism(mech)
		logger.Debug("SASL mechanism deregistered", logger.Mechanism(name))
	}
}

// Get returns the mechanism registered under name, or nil.
func (d *Dispatcher) Get(name string) Mechanism {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mechanisms[strings.ToUpper(name)]
}

// Mechanisms returns the registered mechanism names in sorted order, as
// advertised in supportedSASLMechanisms.
func (d *Dispatcher) Mechanisms() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.mechanisms))
	for name := range d.mechanisms {
		names = append(names, name)
	}
	d.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Metrics returns the dispatcher metrics (possibly nil).
func (d *Dispatcher) Metrics() *BindMetrics {
	return d.metrics
}

// Close deregisters every mechanism.
func (d *Dispatcher) Close() error {
	for _, name := range d.Mechanisms() {
		d.Deregister(name)
	}
	return nil
}

// ProcessBind runs one SASL bind round trip on conn.
func (d *Dispatcher) ProcessBind(ctx context.Context, conn *Connection, req *BindRequest) *BindOutcome {
	start := time.Now()
	name := strings.ToUpper(req.Mechanism)

	ctx, span := telemetry.StartBindSpan(ctx, name, "", telemetry.ConnectionID(conn.ID))
	defer span.End()

	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithMechanism(name).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx)))
	}

	previous := conn.InProgressMechanism()

	var outcome *BindOutcome
	mech := d.Get(name)
	switch {
	case mech == nil:
		d.clearState(ctx, conn)
		outcome = FailedWithCode(ResultAuthMethodNotSupported,
			fmt.Errorf("%w: %q", ErrUnsupportedMechanism, req.Mechanism))

	default:
		if previous != "" && previous != name {
			logger.DebugCtx(ctx, "Abandoning in-progress bind",
				"previous_mechanism", previous)
			d.clearState(ctx, conn)
		}

		outcome = mech.ProcessBind(ctx, conn, req)
		if outcome == nil {
			outcome = FailedWithCode(ResultOther, errNoOutcome)
		}
		if !outcome.InProgress() {
			d.clearState(ctx, conn)
		}
	}

	d.apply(ctx, conn, name, outcome)
	d.trackInProgress(previous != "", outcome.InProgress())

	outcome.DiagnosticMessage = DiagnosticMessage(outcome.ResultCode)

	span.SetAttributes(telemetry.ResultCode(uint16(outcome.ResultCode)))
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.ResultCode.String())
	}

	d.metrics.RecordBind(name, outcome.ResultCode, time.Since(start))
	logOutcome(ctx, name, outcome, start)

	return outcome
}

// apply updates the connection identity and security layer from outcome.
func (d *Dispatcher) apply(ctx context.Context, conn *Connection, mechanism string, outcome *BindOutcome) {
	if !outcome.Succeeded() {
		conn.SetAuthenticationInfo(nil)
		if outcome.SecurityLayer != nil {
			if err := outcome.SecurityLayer.Dispose(); err != nil {
				logger.WarnCtx(ctx, "Failed to dispose security layer", logger.Err(err))
			}
			outcome.SecurityLayer = nil
		}
		return
	}

	info := outcome.AuthInfo
	if info == nil {
		info = AnonymousInfo(mechanism)
		outcome.AuthInfo = info
	}
	if info.Mechanism == "" {
		info.Mechanism = mechanism
	}
	conn.SetAuthenticationInfo(info)

	if outcome.SecurityLayer != nil {
		if err := conn.SetPendingSecurityLayer(outcome.SecurityLayer); err != nil {
			logger.WarnCtx(ctx, "Failed to dispose replaced security layer", logger.Err(err))
		}
		d.metrics.RecordSecurityLayer(mechanism, outcome.SecurityLayer.QOP())
	}
}

func (d *Dispatcher) clearState(ctx context.Context, conn *Connection) {
	if err := conn.ClearMechanismState(); err != nil {
		logger.WarnCtx(ctx, "Failed to dispose mechanism state", logger.Err(err))
	}
}

func (d *Dispatcher) trackInProgress(before, after bool) {
	switch {
	case !before && after:
		d.metrics.BindStarted()
	case before && !after:
		d.metrics.BindFinished()
	}
}

func logOutcome(ctx context.Context, mechanism string, outcome *BindOutcome, start time.Time) {
	switch {
	case outcome.Succeeded():
		logger.InfoCtx(ctx, "Bind succeeded",
			logger.BindDN(outcome.AuthInfo.AuthenticationDN),
			logger.AuthzID(outcome.AuthInfo.AuthzID()),
			logger.DurationMs(start))
	case outcome.InProgress():
		logger.DebugCtx(ctx, "Bind in progress", logger.DurationMs(start))
	default:
		logger.InfoCtx(ctx, "Bind failed",
			logger.ResultCode(int(outcome.ResultCode)),
			logger.Err(outcome.Err),
			logger.DurationMs(start))
	}
}

func closeMechanism(mech Mechanism) {
	c, ok := mech.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close SASL mechanism",
			logger.Mechanism(mech.Name()), logger.Err(err))
	}
}
