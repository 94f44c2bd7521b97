package lc

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ManagedGroupName is the fx value group Module collects registrations from.
const ManagedGroupName = "lc.managed"

var (
	managedServiceType = reflect.TypeOf((*ManagedService)(nil)).Elem()
	registrationType   = reflect.TypeOf(Registration{})
)

type centreParams struct {
	fx.In

	Lc             fx.Lifecycle
	Registrations  []Registration       `group:"lc.managed"`
	Logger         *zap.Logger          `optional:"true"`
	Metrics        *Metrics             `optional:"true"`
	TracerProvider trace.TracerProvider `optional:"true"`
}

// Module provides a *Centre built from every Registration in the lc.managed
// group and hooks it into the fx lifecycle. The group goes through a Registry,
// so a nil service or one instance supplied twice fails the application.
//
// fx only runs OnStop for hooks whose OnStart succeeded, so when the Centre
// fails to start the hook unwinds the levels that did start before returning.
func Module(opts ...Option) fx.Option {
	return fx.Module("lc",
		fx.Provide(func(p centreParams) (*Centre, error) {
			registry := NewRegistry()
			for _, reg := range p.Registrations {
				if err := registry.Register(reg.Service, reg.Level); err != nil {
					return nil, err
				}
			}
			all := []Option{
				WithLogger(p.Logger),
				WithTracerProvider(p.TracerProvider),
				WithMetrics(p.Metrics),
			}
			c := NewCentre(registry.Registrations(), append(all, opts...)...)
			p.Lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					err := c.Start(ctx)
					if err == nil {
						return nil
					}
					return multierr.Append(err, c.Stop(ctx))
				},
				OnStop: func(ctx context.Context) error {
					if err := c.Stop(ctx); !errors.Is(err, ErrAlreadyStopped) {
						return err
					}
					return nil
				},
			})
			return c, nil
		}),
		fx.Invoke(func(*Centre) {}),
	)
}

// Provide registers ctor with fx and adds the service it returns to the
// lc.managed group at level. The first result of ctor must implement
// ManagedService.
func Provide(ctor any, level Level) fx.Option {
	register, err := registrationFor(ctor, level)
	if err != nil {
		return fx.Error(err)
	}
	return fx.Options(
		fx.Provide(ctor),
		fx.Provide(fx.Annotate(register, fx.ResultTags(`group:"lc.managed"`))),
	)
}

// Supply adds an already constructed service to the lc.managed group.
func Supply(svc ManagedService, level Level) fx.Option {
	if isNil(svc) {
		return fx.Error(fmt.Errorf("%w: service is nil", ErrInvalidRegistration))
	}
	reg := Registration{Service: svc, Level: level}
	return fx.Provide(fx.Annotate(func() Registration { return reg }, fx.ResultTags(`group:"lc.managed"`)))
}

func registrationFor(ctor any, level Level) (any, error) {
	fnType := reflect.TypeOf(ctor)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: constructor must be a function, got %T", ErrInvalidRegistration, ctor)
	}
	if fnType.NumOut() == 0 {
		return nil, fmt.Errorf("%w: constructor %T returns nothing", ErrInvalidRegistration, ctor)
	}
	out := fnType.Out(0)
	if !out.Implements(managedServiceType) {
		return nil, fmt.Errorf("%w: %s does not implement ManagedService", ErrInvalidRegistration, out)
	}
	regFnType := reflect.FuncOf([]reflect.Type{out}, []reflect.Type{registrationType}, false)
	return reflect.MakeFunc(regFnType, func(args []reflect.Value) []reflect.Value {
		svc := args[0].Interface().(ManagedService)
		return []reflect.Value{reflect.ValueOf(Registration{Service: svc, Level: level})}
	}).Interface(), nil
}
