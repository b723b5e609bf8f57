package techsync

// Payloads for the five mutation kinds. Validation failures are
// programmer-error class: they propagate to the caller instead of being
// swallowed into the offline queue.

type StatusUpdatePayload struct {
	Status string `json:"status" validate:"required,oneof=aberta em_andamento pausada concluida cancelada"`
}

type ChecklistUpdatePayload struct {
	ItemIndex int  `json:"item_index" validate:"gte=0"`
	Done      bool `json:"done"`
}

type PhotoAddPayload struct {
	Caption string `json:"caption"`
	Photo   []byte `json:"photo" validate:"required"`
}

type ContractSignPayload struct {
	Signature []byte `json:"signature" validate:"required"`
	SignedBy  string `json:"signed_by" validate:"required"`
}

type ObservationAddPayload struct {
	Text string `json:"text" validate:"required"`
}

// MutationResult is the uniform answer every mutating operation returns.
// Offline=false means the backend already has the change; Offline=true
// means it was queued and the cache patched optimistically.
type MutationResult struct {
	Offline  bool   `json:"offline"`
	ActionId string `json:"actionId,omitempty"`
}

type SyncActionError struct {
	ActionId    string `json:"actionId"`
	Kind        string `json:"kind"`
	WorkOrderId string `json:"workOrderId"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
}

// SyncSummary reports one reconciliation pass. Success means no action was
// permanently dropped during the pass; skipped actions (backoff window not
// yet elapsed) don't count against it.
type SyncSummary struct {
	Success bool              `json:"success"`
	Synced  int               `json:"synced"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
	Errors  []SyncActionError `json:"errors"`
}

type SyncStatusResponse struct {
	Online       bool    `json:"online"`
	Syncing      bool    `json:"syncing"`
	PendingCount int64   `json:"pendingCount"`
	LastSyncAt   *string `json:"lastSyncAt"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UnlockRequest struct {
	Password string `json:"password" binding:"required"`
}
