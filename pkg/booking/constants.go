package booking

const (
	operationBook                = "book"
	operationCancel              = "cancel"
	operationConfirmEvent        = "confirm_event"
	operationDeleteEvent         = "delete_event"
	operationRegister            = "register"
	operationAuthenticate        = "authenticate"
	operationChangePassword      = "change_password"
	operationSetRole             = "set_role"
	operationSetBlocked          = "set_blocked"
	operationDeleteAccount       = "delete_account"
	operationUpdateConfiguration = "update_configuration"
	operationBootstrap           = "bootstrap_superadmin"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	auditSubjectSlot          = "slot"
	auditSubjectAccount       = "account"
	auditSubjectConfiguration = "configuration"
)
