package techsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/fieldapi"
	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"bitbucket.org/mmdatafocus/fieldservice_sync/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// API bundles the injected pieces the local HTTP surface needs. Handlers
// hang off it instead of package globals so tests can wire their own.
type API struct {
	Client  *fieldapi.Client
	Watcher *NetworkWatcher
	Engine  *Engine
	Facade  *Facade
	Logger  *logrus.Logger
}

func resolveToken(c *gin.Context) (string, bool) {
	token, ok := utils.GetTokenFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(token) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return token, true
}

func resolveBusinessID(c *gin.Context) string {
	businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
	return businessId
}

func (a *API) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		online := a.Watcher.Check(ctx)
		pending, err := models.CountPendingActions(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var lastSync *string
		if session, serr := models.GetSession(ctx); serr == nil {
			lastSync = formatTime(session.LastSyncAt)
		}
		c.JSON(http.StatusOK, SyncStatusResponse{
			Online:       online,
			Syncing:      a.Engine.Syncing(),
			PendingCount: pending,
			LastSyncAt:   lastSync,
		})
	}
}

func (a *API) TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := resolveToken(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		online := a.Watcher.Check(ctx)
		summary, err := a.Engine.Reconcile(ctx, token, online, models.SyncTriggeredManual)
		switch {
		case errors.Is(err, ErrSyncInProgress):
			c.JSON(http.StatusConflict, gin.H{"status": "already_syncing"})
		case errors.Is(err, ErrOffline):
			c.JSON(http.StatusConflict, gin.H{"status": "offline"})
		case errors.Is(err, ErrNoCredential):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no credential available"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, summary)
		}
	}
}

func (a *API) PendingActionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actions, err := models.PendingActionsFIFO(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": actions})
	}
}

func (a *API) DeadLettersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		letters, err := models.ListDeadLetters(c.Request.Context(), queryLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": letters})
	}
}

func (a *API) SyncRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := models.ListSyncRuns(c.Request.Context(), queryLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}

// ListWorkOrdersHandler is the read-through path: fetch and cache while
// online, fall back to the tenant's cached snapshot otherwise.
func (a *API) ListWorkOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := resolveToken(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		businessId := resolveBusinessID(c)

		if a.Watcher.Online() {
			items, err := a.Client.ListWorkOrders(ctx, token)
			if err == nil {
				if cerr := models.CacheWorkOrderList(ctx, businessId, items); cerr != nil && a.Logger != nil {
					a.Logger.WithFields(logrus.Fields{"module": "techsync"}).Error("cache list: " + cerr.Error())
				}
				c.JSON(http.StatusOK, models.CachedList{Items: items, CachedAt: time.Now().UTC(), FromCache: false})
				return
			}
		}

		cached, err := models.GetCachedWorkOrderList(ctx, businessId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no cached work order list"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, cached)
	}
}

func (a *API) GetWorkOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := resolveToken(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		workOrderId := c.Param("id")

		if a.Watcher.Online() {
			detail, err := a.Client.GetWorkOrder(ctx, token, workOrderId)
			if err == nil {
				if cerr := models.CacheWorkOrderDetail(ctx, detail); cerr != nil && a.Logger != nil {
					a.Logger.WithFields(logrus.Fields{"module": "techsync"}).Error("cache detail: " + cerr.Error())
				}
				c.JSON(http.StatusOK, models.CachedDetail{Detail: detail, CachedAt: time.Now().UTC(), FromCache: false})
				return
			}
		}

		cached, err := models.GetCachedWorkOrderDetail(ctx, workOrderId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "work order not cached"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, cached)
	}
}

func (a *API) mutation(c *gin.Context, run func(token string, businessId string, workOrderId string) (*MutationResult, error)) {
	token, ok := resolveToken(c)
	if !ok {
		return
	}
	workOrderId := c.Param("id")
	result, err := run(token, resolveBusinessID(c), workOrderId)
	if err != nil {
		var validationErrs validator.ValidationErrors
		switch {
		case errors.As(err, &validationErrs):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case fieldapi.IsConflict(err):
			c.JSON(http.StatusConflict, gin.H{"error": "work order changed on the server", "detail": err.Error()})
		case fieldapi.IsClientError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	message := "saved"
	if result.Offline {
		message = "saved offline, will sync"
	}
	c.JSON(http.StatusOK, gin.H{"offline": result.Offline, "actionId": result.ActionId, "message": message})
}

func (a *API) UpdateStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload StatusUpdatePayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		a.mutation(c, func(token, businessId, workOrderId string) (*MutationResult, error) {
			return a.Facade.UpdateStatus(c.Request.Context(), token, businessId, workOrderId, payload)
		})
	}
}

func (a *API) UpdateChecklistHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload ChecklistUpdatePayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		a.mutation(c, func(token, businessId, workOrderId string) (*MutationResult, error) {
			return a.Facade.UpdateChecklistItem(c.Request.Context(), token, businessId, workOrderId, payload)
		})
	}
}

func (a *API) AddObservationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload ObservationAddPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		a.mutation(c, func(token, businessId, workOrderId string) (*MutationResult, error) {
			return a.Facade.AddObservation(c.Request.Context(), token, businessId, workOrderId, payload)
		})
	}
}

func (a *API) AddPhotoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload PhotoAddPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		a.mutation(c, func(token, businessId, workOrderId string) (*MutationResult, error) {
			return a.Facade.AddPhoto(c.Request.Context(), token, businessId, workOrderId, payload)
		})
	}
}

func (a *API) SignContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload ContractSignPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		a.mutation(c, func(token, businessId, workOrderId string) (*MutationResult, error) {
			return a.Facade.SignContract(c.Request.Context(), token, businessId, workOrderId, payload)
		})
	}
}

func (a *API) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		ctx := c.Request.Context()

		resp, err := a.Client.Login(ctx, req.Username, req.Password)
		if err != nil {
			if fieldapi.IsRetryable(err) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unreachable"})
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		unlockHash, err := utils.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		session := &models.Session{
			Token:          resp.Token,
			TechnicianId:   resp.Technician.ID,
			TechnicianName: resp.Technician.Name,
			BusinessId:     resp.Technician.BusinessId,
			UnlockHash:     string(unlockHash),
			TokenExpiresAt: resp.ExpiresAt,
		}
		if err := models.SaveSession(ctx, session); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": resp.Token, "technician": resp.Technician})
	}
}

// UnlockHandler re-opens the app against the persisted session when the
// backend is unreachable. The bcrypt hash stored at login is the check.
func (a *API) UnlockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UnlockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		session, err := models.GetSession(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no saved session"})
			return
		}
		if err := utils.ComparePassword(session.UnlockHash, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": session.Token, "technician": gin.H{
			"id":          session.TechnicianId,
			"name":        session.TechnicianName,
			"business_id": session.BusinessId,
		}})
	}
}

// LogoutHandler tries one last reconciliation pass so queued work isn't
// thrown away with the session, then wipes everything the agent persists.
func (a *API) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token, _ := utils.GetTokenFromContext(ctx)

		online := a.Watcher.Check(ctx)
		flushed := false
		if online {
			if summary, err := a.Engine.Reconcile(ctx, token, online, models.SyncTriggeredLogout); err == nil {
				flushed = summary.Success
			}
		}

		if err := models.ClearAll(ctx); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "flushed": flushed})
	}
}

func (a *API) ClearCacheHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.ClearCache(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func queryLimit(c *gin.Context) int {
	limit := 0
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return limit
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
