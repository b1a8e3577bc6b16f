package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/partyquest/internal/admin"
	"github.com/playperu/partyquest/internal/handler/health"
	"github.com/playperu/partyquest/internal/photos"
)

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Party Quest API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, d.Checks).Routes())
	if d.PhotoDir != "" {
		r.Handle(photos.PathPrefix+"*", http.StripPrefix(photos.PathPrefix, http.FileServer(http.Dir(d.PhotoDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/feed/ws", d.Feed.ServeWS(logger))
		r.Get("/spectator", handleOverview(logger, d.Console))
		r.Get("/shop/items", handleShopItems())
		r.Get("/offline/status", handleOfflineStatus(logger, d.Queue))
		r.Post("/offline/flush", handleOfflineFlush(logger, d.Queue))

		r.Post("/sessions", handleInitSession(logger, d.Sessions))
		r.Get("/sessions/resolve", handleResolveSession(logger, d.Sessions))

		r.Route("/devices/{device}", func(r chi.Router) {
			r.Delete("/session", handleForgetSession(logger, d.Sessions))
			r.Get("/onboarding", handleOnboarding(logger, d.Sessions))
			r.Post("/onboarding", handleOnboarding(logger, d.Sessions))
			r.Post("/command", handleApplyCommand(logger, d.Sessions))
		})

		// Player routes, {sessionID} checked by sessionMiddleware.
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(sessionMiddleware(logger, d.Players, d.Sessions))
			r.Get("/state", handleState(logger, d.Workflow))
			r.Get("/qr", handleSessionQR(logger, d.PublicBaseURL))
			r.Get("/history", handleHistory(logger, d.Players))
			r.Get("/messages", handleMessages(logger, d.Players))
			r.Get("/events", handleEvents(d.Feed))

			r.Post("/tasks/cancel", handleCancelTask(logger, d.Workflow))
			r.Post("/tasks/{position}/open", handleOpenTask(logger, d.Workflow))
			r.Post("/tasks/{position}/complete", handleCompleteTask(logger, d.Workflow))
			r.Post("/tasks/{position}/skip", handleSkipTask(logger, d.Workflow))

			r.Get("/shop", handleShopOwned(logger, d.Shop))
			r.Post("/shop/quote", handleShopQuote(logger, d.Shop))
			r.Post("/shop/purchase", handleShopPurchase(logger, d.Shop))

			r.Post("/slots/start", handleSlots(logger, d.Slots.Start))
			r.Post("/slots/spin", handleSlotsSpin(logger, d.Slots))
			r.Post("/slots/gamble", handleSlotsGamble(logger, d.Slots))
			r.Post("/slots/collect", handleSlots(logger, d.Slots.Collect))
			r.Post("/slots/exit", handleSlots(logger, d.Slots.Exit))

			r.Get("/treasure", handleTreasure(logger, d.Treasure))
			r.Post("/treasure/{stop}/answer", handleTreasureAnswer(logger, d.Treasure))
			r.Post("/treasure/{stop}/verify", handleTreasureVerify(logger, d.Treasure))
			r.Post("/treasure/{stop}/found", handleTreasureFound(logger, d.Treasure))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", handleAdminLogin(logger, d.Admins))
			r.Post("/logout", handleAdminLogout(logger, d.Admins))
			r.Get("/me", handleAdminMe(d.Admins))

			r.Group(func(r chi.Router) {
				r.Use(adminAuthMiddleware(d.Admins))
				addAdminRoutes(r, logger, d.Console)
			})
		})
	})

	if d.SPADir != "" {
		if info, err := os.Stat(d.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", d.SPADir)
			r.NotFound(handleSPA(d.SPADir))
		}
	}
}

func addAdminRoutes(r chi.Router, logger *slog.Logger, c *admin.Service) {
	r.Get("/overview", handleOverview(logger, c))
	r.Post("/reset-all", handleAdminAction(logger, "reset_all", func(ctx context.Context, _ string) error {
		return c.ResetAll(ctx)
	}))
	r.Post("/reset-bingo", handleAdminAction(logger, "reset_bingo", c.ResetBingo))
	r.Post("/reset-treasure", handleAdminAction(logger, "reset_treasure", c.ResetTreasure))
	r.Post("/reset-shop", handleAdminAction(logger, "reset_shop", c.ResetShop))
	r.Delete("/sessions", handleAdminDeleteAll(logger, c))
	r.Post("/commands", handleAdminCommand(logger, c))
	r.Post("/messages", handleAdminAnnounce(logger, c))

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", handleAdminSession(logger, c))
		r.Delete("/", handleAdminAction(logger, "delete_session", c.DeleteSession))
		r.Post("/reset", handleAdminAction(logger, "reset_session", c.ResetSession))
		r.Post("/reset-bingo", handleAdminAction(logger, "reset_bingo", c.ResetBingo))
		r.Post("/reset-treasure", handleAdminAction(logger, "reset_treasure", c.ResetTreasure))
		r.Post("/reset-shop", handleAdminAction(logger, "reset_shop", c.ResetShop))
		r.Put("/balance", handleAdminSetBalance(logger, c))
		r.Post("/tasks/{position}/reopen", handleAdminReopenTask(logger, c))
		r.Post("/treasure/{stop}/reset", handleAdminResetStop(logger, c))
	})
}
