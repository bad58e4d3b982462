package api

import (
	"net/http"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"profilehub/app"
	"profilehub/internal/respond"
)

var (
	initOnce   sync.Once
	apiRuntime *app.Runtime
	initErr    error
)

// Handler is the serverless entrypoint; the runtime is built once per
// instance and reused across invocations.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		apiRuntime, initErr = app.Build(app.Options{
			LoadDotEnv:    false,
			RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
		})
	})

	if initErr != nil {
		respond.ErrMessage(w, http.StatusInternalServerError, "application bootstrap failed")
		return
	}

	apiRuntime.Handler.ServeHTTP(w, r)
}
