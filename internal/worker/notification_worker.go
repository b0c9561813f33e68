package worker

import (
	"github.com/conductor-oer/support-service/internal/service"
)

// StartNotificationWorker registers the notification handlers on the
// event dispatcher so ticket mutations fan out to mail/webhook stubs.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
