// Package logging provides structured logging for skatepedia on top of zap.
//
// Loggers add correlation fields from the request context (trace and span
// ids, request id, user id, screen id), redact sensitive fields such as
// tokens and email addresses at the encoder, and sample repetitive logs
// below error level. Output goes to stdout and, optionally, to the
// OpenTelemetry log pipeline.
//
//	logger, err := logging.NewLogger(logging.FromSettings(cfg.Logging), tel.LoggerProvider())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithUserID(ctx, claims.Subject)
//	logger.Info(ctx, "post created", zap.String("post_id", id))
//
// Services that do not need context fields take the underlying *zap.Logger
// from Underlying.
package logging
