package server

import (
	"encoding/json"
	"net/http"
	"strings"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/partyquest/internal/admin"
	"github.com/playperu/partyquest/internal/offline"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/session"
	"github.com/playperu/partyquest/internal/shop"
	"github.com/playperu/partyquest/internal/slots"
	"github.com/playperu/partyquest/internal/treasure"
	"github.com/playperu/partyquest/internal/workflow"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse maps each checked dependency to "ok" or "error".
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               any
	status                             int
	errors                             []int
	contentType                        string
}

var operations = []operation{
	{method: http.MethodGet, path: "/healthz", summary: "Health check",
		description: "Reports whether the main store and the local store are reachable.",
		resp:        HealthResponse{}, errors: []int{http.StatusServiceUnavailable}},
	{method: http.MethodGet, path: "/api/feed/ws", summary: "Spectator feed",
		description: "Upgrades to a websocket streaming change events. ?session narrows it to one session.",
		status:      http.StatusSwitchingProtocols, contentType: "text/plain"},
	{method: http.MethodGet, path: "/api/spectator", summary: "Spectator overview",
		description: "Every session with balance, bingo grid and treasure progress.",
		resp:        []admin.SessionSummary{}},
	{method: http.MethodGet, path: "/api/shop/items", summary: "Shop catalog", resp: []shop.Item{}},
	{method: http.MethodGet, path: "/api/offline/status", summary: "Offline queue status", resp: offline.Status{}},
	{method: http.MethodPost, path: "/api/offline/flush", summary: "Replay the offline queue", resp: offline.FlushResult{}},

	{method: http.MethodPost, path: "/api/sessions", summary: "Initialize session",
		description: "Creates the session with its 25 bingo tasks and 3 treasure stops. Idempotent.",
		req:         InitSessionRequest{}, resp: quest.Session{}, errors: []int{http.StatusBadRequest}},
	{method: http.MethodGet, path: "/api/sessions/resolve", summary: "Resolve device session",
		description: "Returns the session a device plays: ?session wins and is remembered, then the remembered one, then a new one.",
		resp:        ResolveResponse{}, errors: []int{http.StatusBadRequest}},
	{method: http.MethodDelete, path: "/api/devices/{device}/session", summary: "Forget device session", resp: StatusResponse{}},
	{method: http.MethodGet, path: "/api/devices/{device}/onboarding", summary: "Onboarding seen flag", resp: OnboardingResponse{}},
	{method: http.MethodPost, path: "/api/devices/{device}/onboarding", summary: "Mark onboarding seen", resp: OnboardingResponse{}},
	{method: http.MethodPost, path: "/api/devices/{device}/command", summary: "Apply a live channel command",
		description: "Interprets CMD:APP_RESET, CMD:RELOAD and CMD:NAV:<path> for the device.",
		req:         CommandRequest{}, resp: session.Directive{}, errors: []int{http.StatusUnprocessableEntity}},

	{method: http.MethodGet, path: "/api/sessions/{sessionID}/state", summary: "Bingo state",
		description: "Tasks, snapshot, bonus status, balance, in-flight task and sync status.",
		resp:        workflow.View{}, errors: []int{http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/sessions/{sessionID}/qr", summary: "Session join QR code",
		status: http.StatusOK, contentType: "image/png", errors: []int{http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/sessions/{sessionID}/history", summary: "Points history", resp: []quest.PointsHistoryEntry{}},
	{method: http.MethodGet, path: "/api/sessions/{sessionID}/messages", summary: "Live channel messages", resp: []quest.LiveMessage{}},
	{method: http.MethodGet, path: "/api/sessions/{sessionID}/events", summary: "SSE change stream",
		status: http.StatusOK, contentType: "text/event-stream"},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/tasks/{position}/open", summary: "Open task",
		resp: PendingResponse{}, errors: []int{http.StatusConflict, http.StatusUnprocessableEntity}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/tasks/cancel", summary: "Put the open task back",
		resp: PendingResponse{}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/tasks/{position}/complete", summary: "Complete task",
		description: "Multipart with an optional photo file. 202 when the completion waits in the offline queue.",
		resp:        workflow.Result{}, errors: []int{http.StatusConflict, http.StatusUnprocessableEntity}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/tasks/{position}/skip", summary: "Complete task with the skip item",
		resp: workflow.Result{}, errors: []int{http.StatusConflict}},
	{method: http.MethodGet, path: "/api/sessions/{sessionID}/shop", summary: "Owned items", resp: []shop.Owned{}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/shop/quote", summary: "Quote purchase",
		req: PurchaseRequest{}, resp: shop.Quote{}, errors: []int{http.StatusUnprocessableEntity}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/shop/purchase", summary: "Purchase item",
		req: PurchaseRequest{}, resp: shop.Receipt{}, status: http.StatusCreated,
		errors: []int{http.StatusConflict, http.StatusUnprocessableEntity}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/slots/start", summary: "Start slot machine", resp: slots.State{}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/slots/spin", summary: "Spin",
		resp: slots.SpinResult{}, errors: []int{http.StatusConflict}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/slots/gamble", summary: "Gamble the pending win",
		req: GambleRequest{}, resp: slots.GambleResult{}, errors: []int{http.StatusConflict, http.StatusUnprocessableEntity}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/slots/collect", summary: "Collect the pending win", resp: slots.State{}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/slots/exit", summary: "Leave the slot machine", resp: slots.State{}},
	{method: http.MethodGet, path: "/api/sessions/{sessionID}/treasure", summary: "Treasure hunt progress", resp: treasure.Progress{}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/treasure/{stop}/answer", summary: "Answer a stop question",
		req: AnswerRequest{}, resp: treasure.AnswerResult{}, errors: []int{http.StatusConflict, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/treasure/{stop}/verify", summary: "Check a location proof",
		req: treasure.Proof{}, resp: treasure.Verdict{}, errors: []int{http.StatusConflict}},
	{method: http.MethodPost, path: "/api/sessions/{sessionID}/treasure/{stop}/found", summary: "Mark a stop found",
		req: treasure.Proof{}, resp: treasure.FoundResult{}, errors: []int{http.StatusConflict, http.StatusUnprocessableEntity}},

	{method: http.MethodPost, path: "/api/admin/login", summary: "Admin login",
		description: "Authenticate with email and password. Sets admin_session cookie.",
		req:         AdminLoginRequest{}, resp: AdminMeResponse{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/logout", summary: "Admin logout", resp: StatusResponse{}},
	{method: http.MethodGet, path: "/api/admin/me", summary: "Current admin",
		resp: AdminMeResponse{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/admin/overview", summary: "Admin overview",
		resp: []admin.SessionSummary{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/reset-all", summary: "Reset every session",
		description: "Reopens all tasks and stops, zeroes all balances and deletes their photos.",
		resp:        StatusResponse{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodDelete, path: "/api/admin/sessions", summary: "Delete every session",
		resp: DeletedResponse{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/commands", summary: "Send a remote command",
		req: AdminCommandRequest{}, resp: quest.LiveMessage{}, status: http.StatusCreated,
		errors: []int{http.StatusUnauthorized, http.StatusUnprocessableEntity}},
	{method: http.MethodPost, path: "/api/admin/messages", summary: "Send a text message",
		req: AnnounceRequest{}, resp: quest.LiveMessage{}, status: http.StatusCreated,
		errors: []int{http.StatusUnauthorized, http.StatusUnprocessableEntity}},
	{method: http.MethodGet, path: "/api/admin/sessions/{sessionID}", summary: "Session detail",
		resp: admin.SessionSummary{}, errors: []int{http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodDelete, path: "/api/admin/sessions/{sessionID}", summary: "Delete session",
		resp: StatusResponse{}, errors: []int{http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/sessions/{sessionID}/reset", summary: "Reset session",
		resp: StatusResponse{}, errors: []int{http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodPut, path: "/api/admin/sessions/{sessionID}/balance", summary: "Overwrite balance",
		req: BalanceRequest{}, resp: StatusResponse{}, errors: []int{http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/sessions/{sessionID}/tasks/{position}/reopen", summary: "Reopen a task",
		resp: StatusResponse{}, errors: []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusUnprocessableEntity}},
	{method: http.MethodPost, path: "/api/admin/sessions/{sessionID}/treasure/{stop}/reset", summary: "Reset a treasure stop",
		resp: StatusResponse{}, errors: []int{http.StatusNotFound, http.StatusUnauthorized}},
}

type (
	devicePath struct {
		Device string `path:"device"`
	}
	sessionPath struct {
		SessionID string `path:"sessionID"`
	}
	taskPath struct {
		SessionID string `path:"sessionID"`
		Position  int    `path:"position" minimum:"0" maximum:"24"`
	}
	stopPath struct {
		SessionID string `path:"sessionID"`
		Stop      int    `path:"stop" minimum:"1" maximum:"3"`
	}
)

// pathParams describes the placeholders of path for the reflector.
func pathParams(path string) any {
	switch {
	case strings.Contains(path, "{position}"):
		return taskPath{}
	case strings.Contains(path, "{stop}"):
		return stopPath{}
	case strings.Contains(path, "{sessionID}"):
		return sessionPath{}
	case strings.Contains(path, "{device}"):
		return devicePath{}
	}
	return nil
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Party Quest API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the Party Quest bingo, shop, slot machine and treasure hunt.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		if op.description != "" {
			oc.SetDescription(op.description)
		}
		if params := pathParams(op.path); params != nil {
			oc.AddReqStructure(params)
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		status := op.status
		if status == 0 {
			status = http.StatusOK
		}
		if op.contentType != "" {
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(status), openapi.WithContentType(op.contentType))
		} else {
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(status))
		}
		for _, code := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(code))
		}
		_ = r.AddOperation(oc)
	}
	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
