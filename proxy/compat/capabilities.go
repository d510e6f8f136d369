package compat

import (
	"fmt"
	"net/http"
)

// TimeoutPolicy selects the deadline applied to an upstream call.
type TimeoutPolicy int

const (
	// Bounded calls are metadata/control reads with a short deadline.
	Bounded TimeoutPolicy = iota
	// Unbounded calls may run for a whole generation or model download.
	Unbounded
)

func (p TimeoutPolicy) String() string {
	if p == Unbounded {
		return "unbounded"
	}
	return "bounded"
}

// Injection selects how the system directive is applied to a request body.
type Injection int

const (
	InjectNone Injection = iota
	InjectPrompt
	InjectMessages
)

type OperationCapability struct {
	Method    string
	Timeout   TimeoutPolicy
	Injection Injection
}

type Registry struct {
	operations map[Operation]OperationCapability
}

func NewDefaultRegistry() Registry {
	return Registry{
		operations: map[Operation]OperationCapability{
			OpVersion:    {Method: http.MethodGet, Timeout: Bounded},
			OpTags:       {Method: http.MethodGet, Timeout: Bounded},
			OpGenerate:   {Method: http.MethodPost, Timeout: Unbounded, Injection: InjectPrompt},
			OpChat:       {Method: http.MethodPost, Timeout: Unbounded, Injection: InjectMessages},
			OpPull:       {Method: http.MethodPost, Timeout: Unbounded},
			OpPush:       {Method: http.MethodPost, Timeout: Unbounded},
			OpCreate:     {Method: http.MethodPost, Timeout: Unbounded},
			OpDelete:     {Method: http.MethodDelete, Timeout: Bounded},
			OpCopy:       {Method: http.MethodPost, Timeout: Bounded},
			OpShow:       {Method: http.MethodPost, Timeout: Bounded},
			OpEmbeddings: {Method: http.MethodPost, Timeout: Bounded},
		},
	}
}

func (r Registry) Lookup(op Operation) (OperationCapability, bool) {
	capability, found := r.operations[op]
	return capability, found
}

// Validate checks that op is known and is being called with its upstream method.
func (r Registry) Validate(op Operation, method string) error {
	capability, found := r.operations[op]
	if !found {
		return fmt.Errorf("operation %q is not supported", op)
	}
	if method != capability.Method {
		return fmt.Errorf("operation %q requires %s, got %s", op, capability.Method, method)
	}
	return nil
}
