package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/fieldservice_sync/appctx"
)

var (
	ContextKeyToken          = appctx.ContextKeyToken
	ContextKeyBusinessId     = appctx.ContextKeyBusinessId
	ContextKeyTechnicianId   = appctx.ContextKeyTechnicianId
	ContextKeyTechnicianName = appctx.ContextKeyTechnicianName
	ContextKeyCorrelationId  = appctx.ContextKeyCorrelationId
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyBusinessId)
}

func GetTechnicianIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTechnicianId)
}

func GetTechnicianNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTechnicianName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.Set(ctx, ContextKeyBusinessId, businessId)
}

func SetTechnicianIdInContext(ctx context.Context, technicianId string) context.Context {
	return appctx.Set(ctx, ContextKeyTechnicianId, technicianId)
}

func SetTechnicianNameInContext(ctx context.Context, name string) context.Context {
	return appctx.Set(ctx, ContextKeyTechnicianName, name)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
