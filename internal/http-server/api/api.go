package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/http-server/handlers/availability"
	"slotbook/internal/http-server/handlers/booking"
	"slotbook/internal/http-server/handlers/errors"
	"slotbook/internal/http-server/handlers/invites"
	"slotbook/internal/http-server/handlers/slots"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"slotbook/internal/http-server/middleware/authenticate"
	"slotbook/internal/http-server/middleware/timeout"
	"slotbook/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	booking.Core
	slots.Core
	invites.Core
	availability.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	// Public booking page: the token in the path is the only credential.
	router.Route("/booking", func(public chi.Router) {
		public.Get("/{token}", booking.Resolve(log, handler))
		public.Post("/{token}", booking.Claim(log, handler))
	})

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Route("/slots", func(st chi.Router) {
			st.Get("/", slots.List(log, handler))
			st.Post("/", slots.Create(log, handler))
			st.Delete("/{id}", slots.Delete(log, handler))
		})
		rootApi.Route("/invites", func(inv chi.Router) {
			inv.Get("/", invites.List(log, handler))
			inv.Post("/", invites.Create(log, handler))
			inv.Post("/{token}/cancel", invites.Cancel(log, handler))
		})
		rootApi.Route("/availability", func(av chi.Router) {
			av.Post("/unit", availability.Unit(log, handler))
			av.Post("/hour", availability.Hour(log, handler))
			av.Post("/day", availability.Day(log, handler))
			av.Post("/week-hour", availability.WeekHour(log, handler))
			av.Post("/preset", availability.Preset(log, handler))
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
