// Package scopehttp activates a scope per HTTP request and exposes the
// request to providers registered in it.
package scopehttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xraph/strata"
)

var (
	// RequestToken resolves the *http.Request of the active request scope.
	RequestToken = strata.NewToken[*http.Request]("http.request")

	// ResponseWriterToken resolves the http.ResponseWriter of the active request scope.
	ResponseWriterToken = strata.NewToken[http.ResponseWriter]("http.response_writer")
)

// Middleware enters scope for every request, sets the request and
// response writer on its injector under both their tokens and their
// types, and exits the scope once the handler returns. Handlers find the
// injector through the request context.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(scopehttp.Middleware(c, "request"))
func Middleware(c *strata.Container, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			act, err := c.Use(r.Context(), scope)
			if err != nil {
				c.Logger().Error("activating request scope", zap.String("scope", scope), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

				return
			}

			defer func() {
				if err := act.Close(); err != nil {
					c.Logger().Warn("closing request scope", zap.String("scope", scope), zap.Error(err))
				}
			}()

			r = r.WithContext(act.Context())

			if err := bind(act.Injector(), w, r); err != nil {
				c.Logger().Error("binding request", zap.String("scope", scope), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bind sets the request and response writer on inj.
func bind(inj *strata.Injector, w http.ResponseWriter, r *http.Request) error {
	values := []struct {
		token any
		value any
	}{
		{RequestToken, r},
		{strata.TypeOf[*http.Request](), r},
		{ResponseWriterToken, w},
		{strata.TypeOf[http.ResponseWriter](), w},
	}

	for _, v := range values {
		if err := inj.Set(v.token, v.value); err != nil {
			return err
		}
	}

	return nil
}

// Handler returns a handler that invokes fn with arguments auto-wired
// from the request's injector. A non-nil error result becomes a 500.
//
// Example:
//
//	r.Get("/users/{id}", scopehttp.Handler(c, func(w http.ResponseWriter, svc *UserService) error {
//	    ...
//	}))
func Handler(c *strata.Container, fn any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := c.Invoke(r.Context(), fn)
		if err == nil {
			if e, ok := out.(error); ok {
				err = e
			}
		}

		if err != nil {
			c.Logger().Error("handler failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// URLParam returns a factory reading the chi route parameter name from
// the scope's request.
//
// Example:
//
//	c.RegisterFactory("user.id", scopehttp.URLParam("id"), strata.InScope("request"))
func URLParam(name string) *strata.Callable {
	return strata.Annotate(func(r *http.Request) string {
		return chi.URLParam(r, name)
	}, strata.Dep(RequestToken))
}

// Var returns a factory reading the gorilla/mux route variable name from
// the scope's request.
func Var(name string) *strata.Callable {
	return strata.Annotate(func(r *http.Request) string {
		return mux.Vars(r)[name]
	}, strata.Dep(RequestToken))
}
