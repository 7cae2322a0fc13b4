package constants

type MessageType string

const (
	MsgTypeNotificationCreated MessageType = "NotificationCreated"
	MsgTypeNotificationUpdated MessageType = "NotificationUpdated"
)

const (
	MsgHeaderTypeNotification = "notification"
)
