package lc

import (
	"context"
	"reflect"
	"strings"
)

// ManagedService is a component whose lifecycle is driven by an Orchestrator.
//
// StartAsync and StopAsync issue the request and must return promptly.
// The blocking work happens in AwaitRunning and AwaitTerminated, which may be
// called concurrently for every service of a level.
//
// Services are identified by reference, so implementations should be pointer types.
type ManagedService interface {
	StartAsync() error
	AwaitRunning(ctx context.Context) error
	StopAsync() error
	AwaitTerminated(ctx context.Context) error
}

// Namer lets a service override the display name used in logs and errors.
type Namer interface {
	Name() string
}

type Starter interface {
	Start(ctx context.Context) error
}

type Stopper interface {
	Stop(ctx context.Context) error
}

// Name returns the display name of svc: its Name() when it implements Namer,
// otherwise its Go type name without package or pointer prefix.
func Name(svc ManagedService) string {
	if svc == nil {
		return "<nil>"
	}
	if n, ok := svc.(Namer); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return typeName(svc)
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func joinNames(services []ManagedService) string {
	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = Name(svc)
	}
	return strings.Join(names, ",")
}

func isNil(svc ManagedService) bool {
	if svc == nil {
		return true
	}
	v := reflect.ValueOf(svc)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
