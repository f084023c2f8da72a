package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bkrepo/registry/configuration"
	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/reference"
	"github.com/bkrepo/registry/registry/api/errcode"
	v2 "github.com/bkrepo/registry/registry/api/v2"
	"github.com/bkrepo/registry/registry/auth"
	"github.com/bkrepo/registry/registry/handlers/internal/metrics"
	"github.com/bkrepo/registry/registry/storage"
	"github.com/gorilla/mux"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/errortracking"
)

const apiVersionHeader = "Docker-Distribution-API-Version"

// App is a global registry application object. Shared resources can be placed
// on this object that will be accessible from all requests.
type App struct {
	Config *configuration.Configuration

	router           *mux.Router
	registry         *storage.Registry
	accessController auth.AccessController
	maxManifestSize  int64

	// urlBase is set when Config.HTTP.Host forces the externally visible
	// address.
	urlBase *url.URL
}

// dispatchFunc takes a context and request and returns a constructed handler
// for the route. The dispatcher will use this to dynamically create request
// specific handlers for each endpoint without creating a new router for each
// request.
type dispatchFunc func(ctx *Context, r *http.Request) http.Handler

// NewApp takes a configuration and returns a configured app, ready to serve
// requests. The access controller may be nil, in which case every request is
// anonymous.
func NewApp(config *configuration.Configuration, registry *storage.Registry, ac auth.AccessController) (*App, error) {
	app := &App{
		Config:           config,
		router:           v2.RouterWithPrefix(config.HTTP.Prefix),
		registry:         registry,
		accessController: ac,
		maxManifestSize:  config.Manifests.MaxSize,
	}
	if app.maxManifestSize <= 0 {
		app.maxManifestSize = configuration.DefaultManifestMaxSize
	}

	if config.HTTP.Host != "" {
		u, err := url.Parse(config.HTTP.Host)
		if err != nil {
			return nil, fmt.Errorf("parsing http host %q: %w", config.HTTP.Host, err)
		}
		app.urlBase = u
	}

	// Register the handler dispatchers.
	app.register(v2.RouteNameBase, func(ctx *Context, r *http.Request) http.Handler {
		return http.HandlerFunc(apiBase)
	})
	app.register(v2.RouteNameManifest, manifestDispatcher)
	app.register(v2.RouteNameCatalog, catalogDispatcher)
	app.register(v2.RouteNameTags, tagsDispatcher)
	app.register(v2.RouteNameBlob, blobDispatcher)
	app.register(v2.RouteNameBlobUpload, blobUploadDispatcher)
	app.register(v2.RouteNameBlobUploadChunk, blobUploadDispatcher)

	return app, nil
}

// register a handler with the application, by route name. The handler will be
// passed through the application filters and context will be constructed at
// request time.
func (app *App) register(routeName string, dispatch dispatchFunc) {
	app.router.GetRoute(routeName).Handler(app.dispatcher(routeName, dispatch))
}

func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Set a header with the Docker Distribution API Version for all
	// responses.
	w.Header().Add(apiVersionHeader, "registry/2.0")
	app.router.ServeHTTP(w, r)
}

// dispatcher returns a handler that constructs a request specific context and
// handler, using the dispatch factory function.
func (app *App) dispatcher(routeName string, dispatch dispatchFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			metrics.Request(routeName, r.Method, rec.status, start)
		}()

		ctx := app.context(rec, r)

		if err := app.authorized(rec, r, ctx); err != nil {
			log.GetLogger(log.WithContext(ctx)).WithError(err).Warn("error authorizing context")
			return
		}

		// Add the authenticated user to the request logger, if any.
		ctx.Context = log.WithLogger(ctx.Context, log.GetLogger(log.WithContext(ctx)).
			WithField("auth_user_name", auth.UserFromContext(ctx).Name))

		if ctx.nameRequired() {
			art, err := reference.ParseName(getName(ctx))
			if err != nil {
				ctx.Errors = append(ctx.Errors, v2.ErrorCodeNameInvalid.WithDetail(err.Error()))
				app.serveErrors(ctx, rec, r)
				return
			}
			ctx.Artifact = art
			ctx.Context = log.WithLogger(ctx.Context, log.GetLogger(log.WithContext(ctx)).WithFields(log.Fields{
				"project_id": art.ProjectID,
				"repo_name":  art.RepoName,
				"repository": art.DockerRepo,
			}))
		}

		dispatch(ctx, r).ServeHTTP(rec, r)

		// Automated error response handling here. Handlers may return their
		// own errors if they need different behavior (such as range errors
		// for layer upload).
		if ctx.Errors.Len() > 0 {
			app.serveErrors(ctx, rec, r)
		}
	})
}

// context constructs the context object for the application. This only be
// called once per request.
func (app *App) context(w http.ResponseWriter, r *http.Request) *Context {
	ctx := r.Context()

	l := log.GetLogger(log.WithContext(ctx)).WithFields(log.Fields{
		correlation.FieldName: correlation.ExtractFromContext(ctx),
		"method":              r.Method,
		"uri":                 r.RequestURI,
		"remote_addr":         r.RemoteAddr,
		"user_agent":          r.UserAgent(),
	})
	ctx = log.WithLogger(ctx, l)

	c := &Context{
		App:     app,
		Context: ctx,
		vars:    mux.Vars(r),
	}

	if app.urlBase != nil {
		c.urlBuilder = v2.NewURLBuilder(app.urlBase, app.Config.HTTP.RelativeURLs)
	} else {
		c.urlBuilder = v2.NewURLBuilderFromRequest(r, app.Config.HTTP.RelativeURLs)
	}

	return c
}

// authorized checks if the request can proceed with access to the requested
// repository. If it succeeds, the context may access the requested
// repository. An error will be returned if access is not available.
func (app *App) authorized(w http.ResponseWriter, r *http.Request, ctx *Context) error {
	log.GetLogger(log.WithContext(ctx)).Debug("authorizing request")

	if app.accessController == nil {
		return nil // access controller is not enabled.
	}

	accessRecords := appendAccessRecords(nil, r.Method, ctx.vars["name"])
	if mux.CurrentRoute(r).GetName() == v2.RouteNameCatalog {
		accessRecords = append(accessRecords, auth.Access{
			Resource: auth.Resource{Type: "registry", Name: "catalog"},
			Action:   "*",
		})
	}

	authCtx, err := app.accessController.Authorized(auth.WithRequest(ctx.Context, r), accessRecords...)
	if err != nil {
		switch err := err.(type) {
		case auth.Challenge:
			// Add the appropriate WWW-Auth header
			err.SetHeaders(r, w)

			if err := errcode.ServeJSON(w, errcode.ErrorCodeUnauthorized.WithDetail(accessRecords)); err != nil {
				log.GetLogger(log.WithContext(ctx)).WithError(err).Error("error serving error json")
			}
		default:
			// This condition is a potential security problem either in
			// the configuration or whatever is backing the access
			// controller. Just return a bad request with no information
			// to avoid exposure. The request should not proceed.
			log.GetLogger(log.WithContext(ctx)).WithError(err).Error("error checking authorization")
			w.WriteHeader(http.StatusBadRequest)
		}

		return err
	}

	ctx.Context = authCtx
	return nil
}

// serveErrors writes the accumulated errors of ctx. Unauthorized errors
// raised for anonymous callers carry a challenge so that clients retry with
// credentials.
func (app *App) serveErrors(ctx *Context, w http.ResponseWriter, r *http.Request) {
	for _, err := range ctx.Errors {
		if coder, ok := err.(errcode.ErrorCoder); ok && coder.ErrorCode() == errcode.ErrorCodeUnauthorized {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", app.Config.HTTP.Realm))
			break
		}
	}

	if err := errcode.ServeJSON(w, ctx.Errors); err != nil {
		log.GetLogger(log.WithContext(ctx)).WithError(err).Error("error serving error json")
	}

	app.logError(ctx, r)
}

func (app *App) logError(ctx *Context, r *http.Request) {
	for _, e := range ctx.Errors {
		var code errcode.ErrorCode
		var message, detail string

		switch ex := e.(type) {
		case errcode.Error:
			code = ex.Code
			message = ex.Message
			detail = fmt.Sprintf("%+v", ex.Detail)
		case errcode.ErrorCode:
			code = ex
			message = ex.Message()
		default:
			// just normal go 'error'
			code = errcode.ErrorCodeUnknown
			message = ex.Error()
		}

		l := log.GetLogger(log.WithContext(ctx)).WithFields(log.Fields{
			"code":    code.String(),
			"message": message,
			"detail":  detail,
		})

		if code.Descriptor().HTTPStatusCode < http.StatusInternalServerError {
			l.Warn("response completed with error")
			continue
		}

		l.Error("response completed with error")
		errortracking.Capture(
			fmt.Errorf("%s: %s: %s", code.String(), message, detail),
			errortracking.WithContext(ctx),
			errortracking.WithRequest(r),
			errortracking.WithField("code", code.String()),
		)
	}
}

// appendAccessRecords builds the access records required by a request on
// the repository name.
func appendAccessRecords(records []auth.Access, method string, name string) []auth.Access {
	if name == "" {
		return records
	}

	resource := auth.Resource{
		Type: "repository",
		Name: name,
	}

	switch method {
	case http.MethodGet, http.MethodHead:
		records = append(records, auth.Access{Resource: resource, Action: "pull"})
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		records = append(records,
			auth.Access{Resource: resource, Action: "pull"},
			auth.Access{Resource: resource, Action: "push"},
		)
	case http.MethodDelete:
		records = append(records, auth.Access{Resource: resource, Action: "delete"})
	}
	return records
}

// apiBase implements a simple yes-man for doing overall checks against the
// api. This can support auth roundtrips to support docker login.
func apiBase(w http.ResponseWriter, r *http.Request) {
	const emptyJSON = "{}"
	// Provide a simple /v2/ 200 OK response with empty json response.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprint(len(emptyJSON)))

	fmt.Fprint(w, emptyJSON)
}

// statusRecorder keeps the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Context should contain the request specific context for use in across
// handlers. Resources that don't need to be shared across handlers should not
// be on this object.
type Context struct {
	// App points to the application structure that created this context.
	*App
	context.Context

	// Artifact is the repository addressed by the request, without
	// reference. It is only set on routes carrying a name.
	Artifact reference.Artifact

	// Errors is a collection of errors encountered during the request to be
	// returned to the client API. If errors are added to the collection, the
	// handler *must not* start the response via http.ResponseWriter.
	Errors errcode.Errors

	urlBuilder *v2.URLBuilder
	vars       map[string]string
}

// Value overrides context.Context.Value to ensure that calls are routed to
// correct context.
func (ctx *Context) Value(key interface{}) interface{} {
	return ctx.Context.Value(key)
}

func (ctx *Context) nameRequired() bool {
	_, ok := ctx.vars["name"]
	return ok
}

func getName(ctx *Context) string { return ctx.vars["name"] }

func getReference(ctx *Context) string { return ctx.vars["reference"] }

func getUploadUUID(ctx *Context) string { return ctx.vars["uuid"] }

func getDigestVar(ctx *Context) string { return ctx.vars["digest"] }
