package service

// intent is a request waiting for the worker.
type intent int

const (
	intentNone intent = iota
	intentStart
	intentRestart
	intentReinstall
	intentStop
)

func (i intent) String() string {
	switch i {
	case intentStart:
		return "start"
	case intentRestart:
		return "restart"
	case intentReinstall:
		return "reinstall"
	case intentStop:
		return "stop"
	}
	return "none"
}

type pending struct {
	start, restart, reinstall, stop bool
}

func (p *pending) set(i intent) (fresh bool) {
	switch i {
	case intentStart:
		fresh, p.start = !p.start, true
	case intentRestart:
		fresh, p.restart = !p.restart, true
	case intentReinstall:
		fresh, p.reinstall = !p.reinstall, true
	case intentStop:
		fresh, p.stop = !p.stop, true
	}
	return fresh
}

// take returns the highest-precedence pending intent and clears it along
// with every lower one.
func (p *pending) take() intent {
	var out intent
	switch {
	case p.stop:
		out = intentStop
	case p.reinstall:
		out = intentReinstall
	case p.restart:
		out = intentRestart
	case p.start:
		out = intentStart
	default:
		return intentNone
	}
	*p = pending{}
	return out
}

// interrupting reports whether a pending intent should break a wait.
func (p pending) interrupting() bool {
	return p.stop || p.restart || p.reinstall
}

// goal is where the worker drives the service when idle.
type goal int

const (
	goalNone goal = iota
	goalRunning
	goalFinished
)
