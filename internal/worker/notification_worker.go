package worker

import (
	"github.com/spec-kit/ticket-desk/internal/service"
)

// StartNotificationWorker registers the event handlers that feed notices and the journal.
func StartNotificationWorker(notificationService *service.NotificationService, journalService *service.JournalService) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if journalService != nil {
		journalService.RegisterHandlers()
	}
}
