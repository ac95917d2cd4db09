package proconn

// Handlers holds one optional handler per event kind. A nil handler means
// events of that kind are dropped. Handlers run on the goroutine calling
// Run, one at a time, in the order the kernel sent the events; a non-nil
// error ends Run with that error.
type Handlers struct {
	Fork     func(ForkEvent) error
	Exec     func(ExecEvent) error
	UID      func(UIDEvent) error
	GID      func(GIDEvent) error
	SID      func(SIDEvent) error
	Ptrace   func(PtraceEvent) error
	Comm     func(CommEvent) error
	Coredump func(CoredumpEvent) error
	Exit     func(ExitEvent) error
}

// Kinds returns the set of kinds with a handler.
func (h Handlers) Kinds() KindSet {
	var s KindSet
	for k := range h.table() {
		s = s.With(k)
	}
	return s
}

type handlerFunc func(Event) error

func (h Handlers) table() map[Kind]handlerFunc {
	t := make(map[Kind]handlerFunc, len(Kinds))
	add(t, KindFork, h.Fork)
	add(t, KindExec, h.Exec)
	add(t, KindUID, h.UID)
	add(t, KindGID, h.GID)
	add(t, KindSID, h.SID)
	add(t, KindPtrace, h.Ptrace)
	add(t, KindComm, h.Comm)
	add(t, KindCoredump, h.Coredump)
	add(t, KindExit, h.Exit)
	return t
}

func add[E Event](t map[Kind]handlerFunc, k Kind, fn func(E) error) {
	if fn == nil {
		return
	}
	t[k] = func(ev Event) error {
		return fn(ev.(E))
	}
}

// dispatcher routes events to the handler registered for their kind.
type dispatcher struct {
	handlers map[Kind]handlerFunc
	metrics  Metrics
}

func newDispatcher(h Handlers, m Metrics) *dispatcher {
	return &dispatcher{handlers: h.table(), metrics: m}
}

func (d *dispatcher) dispatch(ev Event) error {
	fn, ok := d.handlers[ev.Kind()]
	if !ok {
		d.metrics.ObserveDropped(ev.Kind())
		return nil
	}
	d.metrics.ObserveEvent(ev.Kind())
	return fn(ev)
}
