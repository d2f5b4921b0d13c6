package binder

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"zigbee-descriptors/internal/descriptor"
	"zigbee-descriptors/internal/devicedb"
	"zigbee-descriptors/internal/store"
)

var (
	// ErrUnknownModel is returned when no definition matches a device's model.
	ErrUnknownModel = errors.New("unknown device model")
	// ErrInvalidIEEE is returned for addresses that are not 64-bit hex strings.
	ErrInvalidIEEE = errors.New("invalid ieee address")
)

// Bind results used as metric labels.
const (
	resultCreated      = "created"
	resultExisting     = "existing"
	resultUnknownModel = "unknown_model"
	resultInvalid      = "invalid"
	resultError        = "error"
)

// ParseIEEE normalizes an IEEE address to 16 upper-case hex digits without
// a 0x prefix.
func ParseIEEE(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 16 {
		return "", fmt.Errorf("%w: %q", ErrInvalidIEEE, s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIEEE, s)
	}
	return strings.ToUpper(s), nil
}

// Binder resolves a device's definition when it joins the network and keeps
// the result as the device's session.
type Binder struct {
	db      *devicedb.DB
	store   store.Store
	events  *EventBus
	metrics *Metrics
	logger  *slog.Logger

	// rebindMu keeps a rebind's delete and create from interleaving with
	// another rebind or leave of any device.
	rebindMu sync.Mutex
}

// New creates a binder. metrics may be nil.
func New(db *devicedb.DB, st store.Store, events *EventBus, metrics *Metrics, logger *slog.Logger) *Binder {
	if metrics == nil {
		metrics = NewMetrics()
	}
	b := &Binder{
		db:      db,
		store:   st,
		events:  events,
		metrics: metrics,
		logger:  logger.With("component", "binder"),
	}
	if sessions, err := st.ListSessions(); err == nil {
		metrics.sessions.Set(float64(len(sessions)))
	} else {
		b.logger.Error("count sessions", "err", err)
	}
	return b
}

// Events returns the binder's event bus.
func (b *Binder) Events() *EventBus {
	return b.events
}

// resolve looks up and resolves the definition for zigbeeModel.
func (b *Binder) resolve(ieee, zigbeeModel string) (*devicedb.Definition, []descriptor.ResolvedProperty, error) {
	def := b.db.Lookup(zigbeeModel)
	if def == nil {
		err := fmt.Errorf("%w: %q", ErrUnknownModel, zigbeeModel)
		b.fail(ieee, zigbeeModel, resultUnknownModel, err)
		return nil, nil, err
	}
	props, err := b.db.Resolver().ResolveDescriptor(def.Descriptor())
	if err != nil {
		reason := descriptor.Reason(err)
		b.metrics.resolveErrors.WithLabelValues(reason).Inc()
		err = fmt.Errorf("model %s: %w", def.Model, err)
		b.fail(ieee, def.Model, resultInvalid, err)
		return nil, nil, err
	}
	return def, props, nil
}

func (b *Binder) fail(ieee, model, result string, err error) {
	b.metrics.binds.WithLabelValues(result).Inc()
	b.logger.Warn("bind failed", "ieee", ieee, "model", model, "err", err)
	b.events.Emit(Event{Type: EventBindFailed, Data: BindFailure{
		IEEEAddress: ieee,
		Model:       model,
		Reason:      result,
		Error:       err.Error(),
	}})
}

// Join binds a device. The device's definition is resolved and stored as a
// new session unless the device already has one, in which case the existing
// session is returned untouched. Validation failures are reported and never
// retried.
func (b *Binder) Join(ieee, zigbeeModel string) (*store.Session, error) {
	ieee, err := ParseIEEE(ieee)
	if err != nil {
		return nil, err
	}
	// A repeated join keeps the stored session even if the reported model no
	// longer resolves. CreateSession still guards against concurrent joins.
	switch sess, err := b.store.GetSession(ieee); {
	case err == nil:
		return b.existing(sess), nil
	case !errors.Is(err, store.ErrNotFound):
		b.metrics.binds.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("get session %s: %w", ieee, err)
	}
	def, props, err := b.resolve(ieee, zigbeeModel)
	if err != nil {
		return nil, err
	}
	return b.create(ieee, def, props)
}

func (b *Binder) existing(sess *store.Session) *store.Session {
	b.metrics.binds.WithLabelValues(resultExisting).Inc()
	b.logger.Debug("device already bound", "ieee", sess.IEEEAddress, "session", sess.ID)
	return sess
}

func (b *Binder) create(ieee string, def *devicedb.Definition, props []descriptor.ResolvedProperty) (*store.Session, error) {
	sess, created, err := b.store.CreateSession(&store.Session{
		IEEEAddress: ieee,
		Model:       def.Model,
		Vendor:      def.Vendor,
		Properties:  props,
	})
	if err != nil {
		b.metrics.binds.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("create session %s: %w", ieee, err)
	}
	if !created {
		return b.existing(sess), nil
	}

	b.metrics.binds.WithLabelValues(resultCreated).Inc()
	b.metrics.sessions.Inc()
	b.logger.Info("device bound", "ieee", ieee, "model", def.Model, "session", sess.ID, "properties", len(props))
	b.events.Emit(Event{Type: EventDeviceBound, Data: sess})
	return sess, nil
}

// Leave drops the device's session. Returns store.ErrNotFound if the device
// is not bound.
func (b *Binder) Leave(ieee string) error {
	ieee, err := ParseIEEE(ieee)
	if err != nil {
		return err
	}
	b.rebindMu.Lock()
	defer b.rebindMu.Unlock()
	return b.leave(ieee)
}

func (b *Binder) leave(ieee string) error {
	sess, err := b.store.GetSession(ieee)
	if err != nil {
		return err
	}
	if err := b.store.DeleteSession(ieee); err != nil {
		return err
	}
	b.metrics.sessions.Dec()
	b.logger.Info("device unbound", "ieee", ieee, "session", sess.ID)
	b.events.Emit(Event{Type: EventDeviceUnbound, Data: sess})
	return nil
}

// Rebind re-resolves a bound device from its definition and replaces its
// session. When resolution fails the old session is kept.
func (b *Binder) Rebind(ieee string) (*store.Session, error) {
	ieee, err := ParseIEEE(ieee)
	if err != nil {
		return nil, err
	}
	b.rebindMu.Lock()
	defer b.rebindMu.Unlock()

	old, err := b.store.GetSession(ieee)
	if err != nil {
		return nil, err
	}
	def, props, err := b.resolve(ieee, old.Model)
	if err != nil {
		return nil, err
	}
	if err := b.leave(ieee); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return b.create(ieee, def, props)
}

// Session returns the session of a bound device.
func (b *Binder) Session(ieee string) (*store.Session, error) {
	ieee, err := ParseIEEE(ieee)
	if err != nil {
		return nil, err
	}
	return b.store.GetSession(ieee)
}

// Sessions lists all bound devices.
func (b *Binder) Sessions() ([]*store.Session, error) {
	return b.store.ListSessions()
}
