package main

import (
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/completion"
	"github.com/ZanzyTHEbar/concrete-go/internal/config"
	"github.com/ZanzyTHEbar/concrete-go/internal/logging"
	"github.com/ZanzyTHEbar/concrete-go/internal/operator"
	"github.com/ZanzyTHEbar/concrete-go/internal/store"
	"github.com/ZanzyTHEbar/concrete-go/internal/tools"
)

// app holds what every command that talks to a model needs.
type app struct {
	cfg     *config.Config
	logger  *logrus.Entry
	client  concrete.CompletionService
	store   store.Store
	runtime *concrete.Runtime
}

func newApp(cfg *config.Config) (*app, error) {
	logger := logging.New("cli")

	client, err := completion.New(cfg.Completion, logging.New("completion"))
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store, logging.New("store"))
	if err != nil {
		return nil, err
	}
	rt, err := concrete.New(concrete.WithConfig(cfg.Runtime), concrete.WithLogger(logging.New("runtime")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, client: client, store: st, runtime: rt}, nil
}

func (a *app) Close() {
	if err := a.runtime.Close(); err != nil {
		a.logger.WithError(err).Warn("closing runtime")
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("closing store")
	}
}

// operatorOptions applies the operator section of the config.
func (a *app) operatorOptions() []operator.Option {
	oc := a.cfg.Operator
	return []operator.Option{
		operator.WithClient(a.cfg.Completion.Provider, a.client),
		operator.WithStore(a.store),
		operator.WithStoreMessages(oc.StoreMessages),
		operator.WithUseTools(oc.UseTools),
		operator.WithTools(tools.Default().List()...),
		operator.WithAsync(oc.Async),
		operator.WithAsyncWorkers(oc.AsyncWorkers),
		operator.WithEventBus(a.runtime.EventBus()),
		operator.WithLogger(logging.New("operator")),
	}
}

// operators creates one built-in role per name.
func (a *app) operators(names []string) (map[string]*operator.Operator, error) {
	ops := make(map[string]*operator.Operator, len(names))
	for _, name := range names {
		op, err := operator.NewRole(name, a.operatorOptions()...)
		if err != nil {
			return nil, err
		}
		ops[name] = op
	}
	return ops, nil
}

func closeOperators(ops map[string]*operator.Operator) {
	for _, op := range ops {
		_ = op.Close()
	}
}
