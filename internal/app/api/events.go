package api

import (
	"errors"
	"net/http"

	"quotespeak/internal/app/session"
	"quotespeak/pkg/ws"
)

// wsHandler streams the tenant's playback events as JSON text messages until the client goes away.
func (api *API) wsHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing tenant id")
		return
	}

	logger := api.logger.With("tenant", tenant)

	wsConn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade to websocket connection", "err", err)
		return
	}

	wsClient, done := ws.NewWsClient(logger, wsConn)

	defer func() {
		logger.Debug("closing websocket connection")
		_ = wsClient.Close()
	}()

	unsubscribe := api.events.Subscribe(session.EventsTopic(tenant), func(message any) {
		if err := wsClient.SendJSON(message); err != nil && !errors.Is(err, ws.ErrClosed) {
			logger.Warn("failed to forward playback event", "err", err)
		}
	})
	defer unsubscribe()

	logger.Info("websocket connection established")

	go wsClient.DrainRead()

	<-done
}
