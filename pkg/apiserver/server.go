package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/leasestore/leasestore/pkg/backend"
	"github.com/leasestore/leasestore/pkg/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type apiServer struct {
	ctx        context.Context
	log        *logrus.Entry
	port       int
	adminToken string
}

func NewAPIServer(ctx context.Context, log *logrus.Entry, port int, adminToken string) *apiServer {
	return &apiServer{
		ctx:        ctx,
		log:        log,
		port:       port,
		adminToken: adminToken,
	}
}

func (a *apiServer) Start(backend backend.Backend) error {
	logrus.Infof("Version: %s", version.Get())

	router, err := newRouter(a.log, backend, a.adminToken)
	if err != nil {
		return err
	}

	// Below this point is where the server is started and graceful shutdown occurs.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: ghandlers.CORS()(router),
	}

	go func() {
		a.log.WithField("port", a.port).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("listen: %s\n", err)
		}
	}()

	go backend.StartSweeperDaemon(a.ctx.Done())

	<-a.ctx.Done()

	a.log.Info("shutting down the api server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer func() {
		cancel()
	}()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("unable to shutdown the api server gracefully")
		return err
	}

	return nil
}

// newRouter wires up the routes. Split out from Start so tests can
// drive the full middleware chain without a listening socket.
func newRouter(log *logrus.Entry, b backend.Backend, adminToken string) (*mux.Router, error) {
	tokenHash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter().StrictSlash(true)
	router.Use(loggingMiddleware(log))
	h := newHandler(b)

	// When functioning properly, these routes will return the version of the app that is running
	router.Path("/").HandlerFunc(h.root)
	router.Path("/healthz").HandlerFunc(h.root)

	// All v1 routes require the admin bearer token
	api := router.PathPrefix("/v1").Subrouter()
	api.Use(tokenAuthMiddleware(tokenHash))

	// Basic routes for the lease resource
	api.Path("/leases").Methods("GET").HandlerFunc(h.listLeases)
	api.Path("/leases").Methods("POST").HandlerFunc(h.createLease)
	api.Path("/leases/{mac}").Methods("GET").HandlerFunc(h.getLease)
	api.Path("/leases/{mac}").Methods("DELETE").HandlerFunc(h.deleteLease)
	api.Path("/leases/{mac}/history").Methods("GET").HandlerFunc(h.getLeaseHistory)

	// Reverse lookup and counters
	api.Path("/ips/{ip}").Methods("GET").HandlerFunc(h.getIP)
	api.Path("/stats").Methods("GET").HandlerFunc(h.getStats)

	// Note: this allows not found urls to be logged via the middleware
	// It **HAS** to be defined after all other paths are defined.
	router.NotFoundHandler = router.NewRoute().HandlerFunc(http.NotFound).GetHandler()

	return router, nil
}
