package httpapi

import "context"

func setCtx(ctx context.Context, key ctxKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func identity(r interface{ Context() context.Context }) (userID, agentID string) {
	ctx := r.Context()
	userID, _ = ctx.Value(ctxUserID).(string)
	agentID, _ = ctx.Value(ctxAgentID).(string)
	return
}
