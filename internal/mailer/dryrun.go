package mailer

import (
	"context"

	logx "contestalert/pkg/logx"
)

// DryRun logs messages instead of delivering them. Used when no
// Mailgun API key is configured, so the rest of the pipeline stays
// exercisable in development.
type DryRun struct {
	Log logx.Logger
}

func (d *DryRun) Send(_ context.Context, msg Message) error {
	d.Log.Info("dry-run email (not delivered)",
		logx.String("to", msg.To),
		logx.String("subject", msg.Subject))
	return nil
}
