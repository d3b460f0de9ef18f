package handlers

import (
	"log/slog"
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// recordAudit writes an immutable audit entry for a command that a handler
// ran. A command the dispatcher rejects on a permission check never
// reaches its handler, so no audit entry is written for it. Failures are
// logged, not returned, so a degraded audit log never blocks the command
// it's recording.
func (d *Dependencies) recordAudit(actor identifiers.UserID, action string, channel *identifiers.ChannelID, detail string, allowed bool) {
	entry := &models.AuditEntry{
		ActorID:   actor,
		Action:    action,
		ChannelID: channel,
		Detail:    detail,
		Allowed:   allowed,
		CreatedAt: time.Now(),
	}
	if err := d.Audit.Write(entry); err != nil {
		slog.Error("handlers: writing audit entry", "action", action, "error", err)
	}
}
