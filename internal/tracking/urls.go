package tracking

import "strings"

const (
	pathRegister = "/register"
	pathEvent    = "/event"
)

// urlHelper builds endpoint URLs, switching to the debug host when asked.
type urlHelper struct {
	base      string
	debugBase string
	debug     bool
}

func (u urlHelper) root() string {
	if u.debug && u.debugBase != "" {
		return strings.TrimRight(u.debugBase, "/")
	}
	return strings.TrimRight(u.base, "/")
}

func (u urlHelper) register() string { return u.root() + pathRegister }

func (u urlHelper) event() string { return u.root() + pathEvent }
