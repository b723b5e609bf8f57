package techsync

import (
	"context"
	"encoding/json"
	"errors"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/fieldapi"
	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"bitbucket.org/mmdatafocus/fieldservice_sync/utils"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Facade is the uniform try-online-else-enqueue contract every screen-level
// mutation goes through. Screens never special-case connectivity: every
// call returns a MutationResult, and only programmer-error conditions
// (malformed payloads, conflicts surfaced while online) propagate.
type Facade struct {
	client   *fieldapi.Client
	watcher  *NetworkWatcher
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewFacade(client *fieldapi.Client, watcher *NetworkWatcher, logger *logrus.Logger) *Facade {
	return &Facade{
		client:   client,
		watcher:  watcher,
		validate: validator.New(),
		logger:   logger,
	}
}

func (f *Facade) UpdateStatus(ctx context.Context, token string, businessId string, workOrderId string, payload StatusUpdatePayload) (*MutationResult, error) {
	return f.apply(ctx, businessId, models.ActionKindStatusUpdate, workOrderId, payload,
		func(baseVersion int) error {
			return f.client.UpdateStatus(ctx, token, workOrderId, baseVersion, payload.Status)
		})
}

func (f *Facade) UpdateChecklistItem(ctx context.Context, token string, businessId string, workOrderId string, payload ChecklistUpdatePayload) (*MutationResult, error) {
	return f.apply(ctx, businessId, models.ActionKindChecklistUpdate, workOrderId, payload,
		func(baseVersion int) error {
			return f.client.UpdateChecklistItem(ctx, token, workOrderId, baseVersion, payload.ItemIndex, payload.Done)
		})
}

func (f *Facade) AddObservation(ctx context.Context, token string, businessId string, workOrderId string, payload ObservationAddPayload) (*MutationResult, error) {
	return f.apply(ctx, businessId, models.ActionKindObservationAdd, workOrderId, payload,
		func(baseVersion int) error {
			return f.client.UpdateObservation(ctx, token, workOrderId, baseVersion, payload.Text)
		})
}

func (f *Facade) AddPhoto(ctx context.Context, token string, businessId string, workOrderId string, payload PhotoAddPayload) (*MutationResult, error) {
	return f.apply(ctx, businessId, models.ActionKindPhotoAdd, workOrderId, payload,
		func(baseVersion int) error {
			return f.client.AddPhoto(ctx, token, workOrderId, payload.Caption, payload.Photo)
		})
}

func (f *Facade) SignContract(ctx context.Context, token string, businessId string, workOrderId string, payload ContractSignPayload) (*MutationResult, error) {
	return f.apply(ctx, businessId, models.ActionKindContractSign, workOrderId, payload,
		func(baseVersion int) error {
			return f.client.SignContract(ctx, token, workOrderId, baseVersion, payload.Signature, payload.SignedBy)
		})
}

func (f *Facade) apply(ctx context.Context, businessId string, kind string, workOrderId string, payload any, direct func(baseVersion int) error) (*MutationResult, error) {
	if workOrderId == "" {
		return nil, errors.New("work order id is required")
	}
	if err := f.validate.Struct(payload); err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	patch := cachePatchFor(kind, payloadJSON)

	baseVersion := 0
	if cached, cerr := models.GetCachedWorkOrderDetail(ctx, workOrderId); cerr == nil {
		baseVersion = cached.Detail.Version
	} else if !errors.Is(cerr, utils.ErrorRecordNotFound) {
		return nil, cerr
	}

	if f.watcher.Online() {
		directErr := direct(baseVersion)
		if directErr == nil {
			f.patchCache(ctx, workOrderId, patch)
			return &MutationResult{Offline: false}, nil
		}
		if fieldapi.IsConflict(directErr) || fieldapi.IsClientError(directErr) {
			// Would fail identically offline; not a connectivity condition.
			return nil, directErr
		}
		if f.logger != nil {
			f.logger.WithFields(logrus.Fields{
				"module":        "techsync",
				"kind":          kind,
				"work_order_id": workOrderId,
			}).Warn("online delivery failed, queueing: " + directErr.Error())
		}
	}

	action, err := models.EnqueueAction(ctx, businessId, kind, workOrderId, baseVersion, payload)
	if err != nil {
		return nil, err
	}
	f.patchCache(ctx, workOrderId, patch)
	return &MutationResult{Offline: true, ActionId: action.ActionId}, nil
}

func (f *Facade) patchCache(ctx context.Context, workOrderId string, patch func(*models.WorkOrderDetail)) {
	if patch == nil {
		return
	}
	if err := models.PatchCachedWorkOrderDetail(ctx, workOrderId, patch); err != nil {
		config.LogError(f.logger, "techsync", "patchCache", "optimistic cache patch", workOrderId, err)
	}
}
