// Command echoserver is a minimal embedder example: it registers a single
// echo service with the reflection dispatcher and runs a broker until
// interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dermesser/clusterrpc/broker"
	"github.com/dermesser/clusterrpc/dispatch"
	"github.com/dermesser/clusterrpc/middleware"
	"github.com/dermesser/clusterrpc/registry"
)

// Echo is the example service: "Echo.Any" returns its input unchanged,
// "Echo.Fail" always reports a handler error. The reflection dispatcher
// names the service after the struct and each procedure after its method.
type Echo struct{}

func (e *Echo) Any(ctx *dispatch.Context) {
	ctx.Ok = true
	ctx.Response = ctx.Input
}

func (e *Echo) Fail(ctx *dispatch.Context) {
	ctx.Ok = false
	ctx.ErrorString = "bad input"
}

func main() {
	addr := flag.String("addr", "tcp://0.0.0.0:5555", "frontend endpoint to bind")
	workers := flag.Int("workers", broker.DefaultWorkerCount, "worker pool size")
	queue := flag.Int("queue", broker.DefaultQueueCapacity, "pending envelope queue capacity")
	etcdEndpoints := flag.String("etcd", "", "comma-separated etcd endpoints for service registration (disabled if empty)")
	serviceName := flag.String("service-name", "echo", "service name this broker registers under")
	registryTTL := flag.Int64("registry-ttl", 10, "etcd lease TTL in seconds for the registration")
	flag.Parse()

	dispatchFn, err := dispatch.NewReflectDispatcher(&Echo{})
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("failed to build dispatcher")
	}

	chain := middleware.Chain(
		middleware.LoggingMiddleware("echo"),
		middleware.TimeOutMiddleware(5*time.Second),
	)

	opts := broker.Options{
		Address:          *addr,
		Dispatch:         dispatchFn,
		WorkerCount:      *workers,
		QueueCapacity:    *queue,
		Middleware:       chain,
		AdmissionLimiter: rate.NewLimiter(rate.Limit(1000), 100),
	}

	if *etcdEndpoints != "" {
		reg, err := registry.NewEtcdRegistry(strings.Split(*etcdEndpoints, ","))
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Fatal("failed to connect to etcd")
		}
		opts.Registry = reg
		opts.ServiceName = *serviceName
		opts.AdvertiseAddr = *addr
		opts.RegistryTTL = *registryTTL

		if peers, err := reg.Discover(*serviceName); err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("failed to discover existing replicas")
		} else {
			log.WithFields(log.Fields{"service": *serviceName, "count": len(peers)}).Info("discovered existing replicas")
		}

		watchCtx, stopWatch := context.WithCancel(context.Background())
		defer stopWatch()
		go watchReplicas(watchCtx, reg, *serviceName)
	}

	b, err := broker.New(opts)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("failed to build broker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("received shutdown signal")
		cancel()
	}()

	log.WithFields(log.Fields{"addr": *addr, "workers": *workers}).Info("starting echoserver")
	if err := b.Run(ctx); err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("broker exited with error")
	}
}

// watchReplicas logs membership changes for serviceName until ctx is
// cancelled, giving an operator visibility into other live replicas
// without polling the registry by hand.
func watchReplicas(ctx context.Context, reg registry.Registry, serviceName string) {
	changes := reg.Watch(serviceName)
	for {
		select {
		case <-ctx.Done():
			return
		case instances, ok := <-changes:
			if !ok {
				return
			}
			log.WithFields(log.Fields{"service": serviceName, "count": len(instances)}).Info("replica set changed")
		}
	}
}
