package rpc

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// RemoteMethod is the signature every exported `Remote<Name>` method on a
// Service must satisfy. It receives the originating Request (to read Kwargs
// and to call Reply for streamed UPDATEs) and returns the DONE payload, or
// an error which becomes the ERROR response content.
type RemoteMethod func(req *Request) (interface{}, error)

// Service introspects a user-supplied object at construction time: every
// exported method whose name begins with "Remote" is registered with the
// prefix stripped and lower-cased-first-letter snake form as its remote
// name (e.g. RemoteHelloWorld -> hello_world).
type Service struct {
	target  interface{}
	methods map[string]RemoteMethod
}

// NewService builds a Service wrapping target, introspecting its exported
// Remote* methods via reflection (Go conventionally avoids underscores in
// exported identifiers, hence the capitalized prefix rather than one).
func NewService(target interface{}) *Service {
	s := &Service{
		target:  target,
		methods: make(map[string]RemoteMethod),
	}

	v := reflect.ValueOf(target)
	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, remoteMethodPrefix) {
			continue
		}
		name := remoteName(m.Name)
		method := v.Method(i)
		fn, ok := method.Interface().(func(*Request) (interface{}, error))
		if !ok {
			log.WithFields(log.Fields{
				"method": m.Name,
			}).Warn("remote-prefixed method has the wrong signature, skipping")
			continue
		}
		s.methods[name] = fn
		log.WithFields(log.Fields{"method": name}).Debug("registered remote method")
	}

	return s
}

// remoteName converts "RemoteHelloWorld" -> "hello_world".
func remoteName(goName string) string {
	stripped := strings.TrimPrefix(goName, remoteMethodPrefix)
	var b strings.Builder
	for i, r := range stripped {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// Methods returns the sorted list of registered remote method names,
// excluding the always-present client_config/ping built-ins.
func (s *Service) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClientConfig returns the full allowed-method list including the two
// always-present built-ins.
func (s *Service) ClientConfig() []string {
	return append([]string{MethodClientConfig, MethodPing}, s.Methods()...)
}

// CallRemote resolves req.Method and invokes it, pushing exactly one
// terminal Response onto req.ReplyTo. It never panics: a panicking remote
// method is recovered and converted into an ERROR response instead.
func (s *Service) CallRemote(req *Request) {
	switch req.Method {
	case MethodClientConfig:
		req.Reply(KindDone, s.ClientConfig())
		return
	case MethodPing:
		req.Reply(KindDone, nil)
		return
	}

	fn, ok := s.methods[req.Method]
	if !ok {
		msg := (&UnknownMethodError{Method: req.Method}).Error()
		log.WithFields(log.Fields{"method": req.Method}).Error(msg)
		req.Reply(KindError, msg)
		return
	}

	log.WithFields(log.Fields{
		"client": req.ClientID,
		"method": req.Method,
		"kwargs": req.Kwargs,
	}).Debug("dispatching remote method")

	content, err := s.invoke(fn, req)
	if err != nil {
		req.Reply(KindError, (&ServiceError{Method: req.Method, Cause: err}).Error())
		return
	}
	req.Reply(KindDone, content)
}

// invoke runs fn, converting a panic into an error so CallRemote can report
// it as an ERROR response instead of crashing the worker.
func (s *Service) invoke(fn RemoteMethod, req *Request) (content interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(req)
}
