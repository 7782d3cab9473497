package orchestrator

import (
	"context"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// onServicesChange registers services created under the services
// namespace and undeploys the ones whose node was removed. Changes inside
// an existing node are handled by the service itself.
func (o *Orchestrator) onServicesChange(ch ports.Change) {
	if len(ch.Path) < 2 {
		return
	}
	name := ch.Path[1]
	_, declared := o.source.Find(config.ServicesKey, name)
	_, registered := o.lookup(name)

	switch {
	case declared && !registered:
		o.deploy(name)
	case !declared && registered:
		o.mu.Lock()
		if o.removing[name] {
			o.mu.Unlock()
			return
		}
		o.removing[name] = true
		o.mu.Unlock()
		go o.remove(name)
	}
}

func (o *Orchestrator) deploy(name string) {
	spec, err := config.SpecFrom(o.source, name)
	if err != nil {
		o.logger.Error("config-invalid", log.Service(name), log.Err(err))
		spec = config.Spec{Name: name, Type: config.DefaultType}
	}
	svc, rerr := o.register(spec, err)
	if rerr != nil {
		return
	}
	o.logger.Info("service-created", log.Service(name))

	o.mu.RLock()
	launched := o.launched
	o.mu.RUnlock()
	if launched {
		svc.RequestStart()
	}
}

func (o *Orchestrator) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := o.Undeploy(ctx, name); err != nil {
		o.logger.Warn("undeploy-failed", log.Service(name), log.Err(err))
	}
	o.mu.Lock()
	delete(o.removing, name)
	o.mu.Unlock()
}
