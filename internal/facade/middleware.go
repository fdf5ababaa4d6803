package facade

import (
	"net"
	"net/http"
)

// requireMachine rejects any request whose remote host is not in
// allowed, returning InvalidControlIP (spec.md §6: "mutating operations
// are rejected unless the caller matches an allow-list of control
// machines"). The same shape gates pipeline ingress against a separate
// allow-list (spec.md §6 config "pipeline-notifier machines").
func requireMachine(allowed map[string]struct{}, log func(host string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := remoteHost(r)
			if _, ok := allowed[host]; !ok {
				if log != nil {
					log(host)
				}
				writeFailure(w, http.StatusForbidden, InvalidControlIP, "caller is not an authorized control machine")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// remoteHost extracts the caller's host from RemoteAddr, stripping the
// port. Falls back to the raw RemoteAddr if it has no port (e.g. a unix
// socket peer address or an already-bare host in tests).
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (f *Facade) requireControlMachine(next http.Handler) http.Handler {
	return requireMachine(f.controlMachines, func(host string) {
		f.log.Warn().Str("remote", host).Msg("rejected control request from unauthorized machine")
	})(next)
}

func (f *Facade) requirePipelineMachine(next http.Handler) http.Handler {
	return requireMachine(f.pipelineMachines, func(host string) {
		f.log.Warn().Str("remote", host).Msg("rejected pipeline request from unauthorized machine")
	})(next)
}
